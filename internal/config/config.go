package config

// Config represents the full bridge configuration.
type Config struct {
	Mail      MailConfig      `yaml:"mail"`
	Webrev    WebrevConfig    `yaml:"webrev"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MailConfig configures the mailing-list bridge.
type MailConfig struct {
	// SenderName and SenderAddress identify the bridge on the list.
	SenderName    string `yaml:"senderName"`
	SenderAddress string `yaml:"senderAddress"`

	// SMTPServer is the submission relay's host:port.
	SMTPServer string `yaml:"smtpServer"`

	// Lists maps a pull-request label to recipient list names; the lists
	// under the empty key receive every pull request.
	Lists map[string][]string `yaml:"lists"`

	// ListAddresses maps a list name to its submission address.
	ListAddresses map[string]string `yaml:"listAddresses"`

	// IgnoredUsers' comments never reach the list.
	IgnoredUsers []string `yaml:"ignoredUsers"`

	// IgnoredComments are regular expressions; a matching comment body is
	// dropped entirely.
	IgnoredComments []string `yaml:"ignoredComments"`

	// ExtraHeaders are added verbatim to every outbound mail.
	ExtraHeaders map[string]string `yaml:"extraHeaders"`

	// IssueTrackerURL is the base for issue links in mail bodies.
	IssueTrackerURL string `yaml:"issueTrackerURL"`

	// IssueProject prefixes numeric issue ids from pull-request titles,
	// e.g. "JDK" turns "1234: Fix foo" into JDK-1234.
	IssueProject string `yaml:"issueProject"`

	// Cooldown defers bridging while the pull request is still being
	// updated.
	Cooldown string `yaml:"cooldown"`

	// SendInterval spaces out individual outbound mails.
	SendInterval string `yaml:"sendInterval"`

	// RepoInSubject prefixes subjects with "<repo>: ".
	RepoInSubject bool `yaml:"repoInSubject"`

	// BranchInSubject prefixes subjects with "[<branch>]" for targets
	// other than the default branch.
	BranchInSubject bool `yaml:"branchInSubject"`

	// ReadyLabels must all be present before a pull request is bridged.
	ReadyLabels []string `yaml:"readyLabels"`

	// ReadyComments maps an author to a comment pattern that must have
	// matched before a pull request is bridged.
	ReadyComments map[string]string `yaml:"readyComments"`

	// HiddenMarker truncates comment bodies at the marker.
	HiddenMarker string `yaml:"hiddenMarker"`

	// ContextLines is the size of the file context quoted under a review
	// comment.
	ContextLines int `yaml:"contextLines"`

	// Lookback bounds the archive-reader scan window.
	Lookback string `yaml:"lookback"`

	// MaxReplySize caps the size of a bridged inbound reply; larger
	// replies are replaced by a notice.
	MaxReplySize int `yaml:"maxReplySize"`
}

// WebrevConfig configures patch-snapshot publication.
type WebrevConfig struct {
	RepositoryURL string `yaml:"repositoryURL"`
	Ref           string `yaml:"ref"`
	BaseURL       string `yaml:"baseURL"`
	BasePath      string `yaml:"basePath"`
	LargeBlobMax  int64  `yaml:"largeBlobMax"`
	PushRetries   int    `yaml:"pushRetries"`
}

// NotifyConfig configures the pull-request and issue notifiers.
type NotifyConfig struct {
	// Integrator is the forge identity whose "Pushed as commit" comments
	// are trusted.
	Integrator string `yaml:"integrator"`

	// BranchVersions maps a target branch to the fix version it ships
	// in.
	BranchVersions map[string]string `yaml:"branchVersions"`

	// StreamDuplicateLabel marks later issues in a release stream.
	StreamDuplicateLabel string `yaml:"streamDuplicateLabel"`

	// IssueHeadings are the body headings that introduce the issues
	// block.
	IssueHeadings []string `yaml:"issueHeadings"`
}

// SchedulerConfig sizes the work-item runtime.
type SchedulerConfig struct {
	Workers     int    `yaml:"workers"`
	Period      string `yaml:"period"`
	ScratchRoot string `yaml:"scratchRoot"`
}

// StoreConfig locates the durable state repository.
type StoreConfig struct {
	RepositoryURL string `yaml:"repositoryURL"`
	Ref           string `yaml:"ref"`
	FileName      string `yaml:"fileName"`
	WorkDir       string `yaml:"workDir"`
	PushRetries   int    `yaml:"pushRetries"`
}

// CacheConfig locates the local archive message cache.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, human
}

// Merge combines multiple configuration instances, prioritising the latter
// ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base
	result.Mail = chooseMail(base.Mail, overlay.Mail)
	result.Webrev = chooseWebrev(base.Webrev, overlay.Webrev)
	result.Notify = chooseNotify(base.Notify, overlay.Notify)
	result.Scheduler = chooseScheduler(base.Scheduler, overlay.Scheduler)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Cache = chooseCache(base.Cache, overlay.Cache)
	result.Logging = chooseLogging(base.Logging, overlay.Logging)
	return result
}

func chooseMail(base, overlay MailConfig) MailConfig {
	if isZeroMail(overlay) {
		return base
	}
	return overlay
}

func isZeroMail(c MailConfig) bool {
	return c.SenderAddress == "" && len(c.Lists) == 0 && len(c.ReadyLabels) == 0 &&
		c.Cooldown == "" && c.IssueTrackerURL == ""
}

func chooseWebrev(base, overlay WebrevConfig) WebrevConfig {
	if overlay == (WebrevConfig{}) {
		return base
	}
	return overlay
}

func chooseNotify(base, overlay NotifyConfig) NotifyConfig {
	if overlay.Integrator == "" && len(overlay.BranchVersions) == 0 &&
		overlay.StreamDuplicateLabel == "" && len(overlay.IssueHeadings) == 0 {
		return base
	}
	return overlay
}

func chooseScheduler(base, overlay SchedulerConfig) SchedulerConfig {
	if overlay == (SchedulerConfig{}) {
		return base
	}
	return overlay
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay == (StoreConfig{}) {
		return base
	}
	return overlay
}

func chooseCache(base, overlay CacheConfig) CacheConfig {
	if overlay == (CacheConfig{}) {
		return base
	}
	return overlay
}

func chooseLogging(base, overlay LoggingConfig) LoggingConfig {
	if overlay == (LoggingConfig{}) {
		return base
	}
	return overlay
}
