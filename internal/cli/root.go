// Package cli wires the bridge's bots into a cobra command. The concrete
// forge, tracker and list-archive clients are injected by the outer binary;
// the core only knows their interfaces.
package cli

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/bkyoung/review-bridge/internal/cache"
	"github.com/bkyoung/review-bridge/internal/config"
	"github.com/bkyoung/review-bridge/internal/forge"
	"github.com/bkyoung/review-bridge/internal/logging"
	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
	"github.com/bkyoung/review-bridge/internal/scheduler"
	"github.com/bkyoung/review-bridge/internal/store/gitstore"
	"github.com/bkyoung/review-bridge/internal/tracker"
	"github.com/bkyoung/review-bridge/internal/usecase/mlbridge"
	"github.com/bkyoung/review-bridge/internal/usecase/notify"
	"github.com/bkyoung/review-bridge/internal/vcs"
	"github.com/bkyoung/review-bridge/internal/webrev"
)

// Dependencies are the external collaborators the outer binary provides.
type Dependencies struct {
	Host    forge.Host
	Tracker tracker.Client
	Archive mailinglist.Archive
	Sender  mailinglist.Sender

	// Renderer produces webrev artifact trees; nil disables publication.
	Renderer webrev.Renderer

	// VCS defaults to the go-git client.
	VCS vcs.Client
}

// NewRootCommand builds the root command running all bots until the context
// is cancelled.
func NewRootCommand(deps Dependencies) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "revbridge",
		Short:        "Bridge forge reviews to mailing lists and the issue tracker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoaderOptions{
				ConfigPaths: []string{configPath},
			})
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return run(cmd, cfg, deps)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config-dir", "", "directory holding revbridge.yaml")
	return root
}

func run(cmd *cobra.Command, cfg config.Config, deps Dependencies) error {
	if deps.Host == nil {
		return fmt.Errorf("no forge client configured")
	}
	if deps.Sender == nil && cfg.Mail.SMTPServer != "" {
		deps.Sender = mailinglist.NewSMTPSender(cfg.Mail.SMTPServer)
	}
	log := logging.New(cfg.Logging)

	client := deps.VCS
	if client == nil {
		client = vcs.NewGitClient()
	}

	st := gitstore.New(gitstore.Config{
		URL:         cfg.Store.RepositoryURL,
		Ref:         cfg.Store.Ref,
		FileName:    cfg.Store.FileName,
		WorkDir:     cfg.Store.WorkDir,
		AuthorName:  cfg.Mail.SenderName,
		AuthorEmail: cfg.Mail.SenderAddress,
		PushRetries: cfg.Store.PushRetries,
	}, client)

	var msgCache *cache.MessageCache
	if cfg.Cache.Path != "" {
		var err error
		msgCache, err = cache.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer msgCache.Close()
	}

	publisher := webrev.New(webrev.Config{
		RepositoryURL: cfg.Webrev.RepositoryURL,
		Ref:           cfg.Webrev.Ref,
		WorkDir:       filepath.Join(cfg.Scheduler.ScratchRoot, "webrev-archive"),
		BaseURL:       cfg.Webrev.BaseURL,
		BasePath:      cfg.Webrev.BasePath,
		LargeBlobMax:  cfg.Webrev.LargeBlobMax,
		PushRetries:   cfg.Webrev.PushRetries,
		AuthorName:    cfg.Mail.SenderName,
		AuthorEmail:   cfg.Mail.SenderAddress,
	}, client, deps.Renderer, log)
	if cfg.Webrev.BaseURL != "" {
		if err := publisher.VerifyMirror(cmd.Context(), nil); err != nil {
			return err
		}
	}

	mailCfg, err := bridgeConfig(cfg.Mail)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	repoNames, err := deps.Host.Repositories(ctx)
	if err != nil {
		return err
	}

	var bots []scheduler.Bot
	for _, name := range repoNames {
		repo, err := deps.Host.Repository(ctx, name)
		if err != nil {
			return err
		}
		bots = append(bots, mlbridge.NewBot(mlbridge.BotOptions{
			Config:    mailCfg,
			Repo:      repo,
			Store:     st,
			Sender:    deps.Sender,
			Archive:   deps.Archive,
			Publisher: publisher,
			MsgCache:  msgCache,
			Log:       log,
		}))
		if deps.Tracker != nil {
			issueNotifier := notify.NewIssueNotifier(notify.IssueNotifierConfig{
				BranchVersions:       cfg.Notify.BranchVersions,
				StreamDuplicateLabel: cfg.Notify.StreamDuplicateLabel,
				IssueHeadings:        cfg.Notify.IssueHeadings,
			}, deps.Tracker, log)
			bots = append(bots, notify.NewBot(notify.Config{
				Integrator:    cfg.Notify.Integrator,
				IssueHeadings: cfg.Notify.IssueHeadings,
			}, repo, st, log, issueNotifier))
		}
	}

	period, err := time.ParseDuration(cfg.Scheduler.Period)
	if err != nil {
		return fmt.Errorf("scheduler period: %w", err)
	}
	sched := scheduler.New(scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		Period:      period,
		ScratchRoot: cfg.Scheduler.ScratchRoot,
	}, log, bots...)

	log.WithField("repositories", len(repoNames)).Info("bridge starting")
	return sched.Run(ctx)
}

// bridgeConfig translates the file-level mail configuration into the
// bridge's native types.
func bridgeConfig(mc config.MailConfig) (mlbridge.Config, error) {
	out := mlbridge.Config{
		Sender:          mail.Address{Name: mc.SenderName, Email: mc.SenderAddress},
		Lists:           map[string][]mailinglist.List{},
		IgnoredUsers:    mc.IgnoredUsers,
		ExtraHeaders:    mc.ExtraHeaders,
		IssueTrackerURL: mc.IssueTrackerURL,
		IssueProject:    mc.IssueProject,
		RepoInSubject:   mc.RepoInSubject,
		BranchInSubject: mc.BranchInSubject,
		ReadyLabels:     mc.ReadyLabels,
		ReadyComments:   map[string]*regexp.Regexp{},
		HiddenMarker:    mc.HiddenMarker,
		ContextLines:    mc.ContextLines,
		MaxReplySize:    mc.MaxReplySize,
	}
	for key, names := range mc.Lists {
		for _, name := range names {
			out.Lists[key] = append(out.Lists[key], mailinglist.List{
				Name:  name,
				Email: mc.ListAddresses[name],
			})
		}
	}
	for _, raw := range mc.IgnoredComments {
		re, err := regexp.Compile(raw)
		if err != nil {
			return out, fmt.Errorf("ignored comment pattern %q: %w", raw, err)
		}
		out.IgnoredComments = append(out.IgnoredComments, re)
	}
	for author, raw := range mc.ReadyComments {
		re, err := regexp.Compile(raw)
		if err != nil {
			return out, fmt.Errorf("ready comment pattern %q: %w", raw, err)
		}
		out.ReadyComments[author] = re
	}
	var err error
	if out.Cooldown, err = parseDuration(mc.Cooldown); err != nil {
		return out, fmt.Errorf("cooldown: %w", err)
	}
	if out.SendInterval, err = parseDuration(mc.SendInterval); err != nil {
		return out, fmt.Errorf("send interval: %w", err)
	}
	if out.Lookback, err = parseDuration(mc.Lookback); err != nil {
		return out, fmt.Errorf("lookback: %w", err)
	}
	return out, nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
