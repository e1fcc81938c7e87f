package chalk

import (
	"log/slog"
	"os"
	"time"
)

// Stage identifies the deployment stage. It selects log verbosity and is
// carried into telemetry attributes; it never changes behavior otherwise.
type Stage string

const (
	StageLocal Stage = "LOCAL"
	StageDev   Stage = "DEV"
	StageProd  Stage = "PROD"
)

// Queue name constants for the fixed topology. Producers and consumers
// refer to queues by these names; ConfigFromEnv can override each one.
const (
	QueueGradingPython   = "lms-grading-python-queue"
	QueueGradingJupyter  = "lms-grading-jupyter-queue"
	QueueGradingFlutter  = "lms-grading-flutter-queue"
	QueueNotifyEmail     = "lms-notify-email-queue"
	QueueNotifyMatrix    = "lms-notify-matrix-queue"
	QueueProgressPublish = "lms-progress-publish-queue"
)

// Config holds configuration for the engine and its subsystems. Build one
// with DefaultConfig or ConfigFromEnv; it is resolved once at startup and
// injected by constructor everywhere — nothing reads the environment later.
type Config struct {
	// Stage is the deployment stage (LOCAL, DEV, PROD).
	Stage Stage

	// Queue name overrides, keyed by the canonical names above.
	GradingPythonQueue   string
	GradingJupyterQueue  string
	GradingFlutterQueue  string
	NotifyEmailQueue     string
	NotifyMatrixQueue    string
	ProgressPublishQueue string

	// VisibilityTimeout is how long a received message stays invisible
	// before it becomes receivable again.
	VisibilityTimeout time.Duration

	// PublishVisibilityTimeout overrides VisibilityTimeout for the
	// progress publish queue, whose jobs run much longer.
	PublishVisibilityTimeout time.Duration

	// MaxReceiveCount is the delivery budget; a message received more
	// than this many times moves to the paired dead-letter queue.
	MaxReceiveCount int

	// Retention is how long unconsumed messages are kept on primary
	// queues before being purged.
	Retention time.Duration

	// DeadLetterRetention is the (much longer) retention window for
	// dead-letter queues, sized for forensic replay.
	DeadLetterRetention time.Duration

	// PollInterval is how often worker pools poll their queues.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HandlerTimeout is the wall-clock budget for fast consumers.
	// BulkTimeout applies to report/export style consumers.
	HandlerTimeout time.Duration
	BulkTimeout    time.Duration
}

// DefaultConfig returns a Config with the production topology values.
func DefaultConfig() Config {
	return Config{
		Stage:                    StageLocal,
		GradingPythonQueue:       QueueGradingPython,
		GradingJupyterQueue:      QueueGradingJupyter,
		GradingFlutterQueue:      QueueGradingFlutter,
		NotifyEmailQueue:         QueueNotifyEmail,
		NotifyMatrixQueue:        QueueNotifyMatrix,
		ProgressPublishQueue:     QueueProgressPublish,
		VisibilityTimeout:        910 * time.Second,
		PublishVisibilityTimeout: 2700 * time.Second,
		MaxReceiveCount:          2,
		Retention:                14400 * time.Second,
		DeadLetterRetention:      1209600 * time.Second,
		PollInterval:             time.Second,
		ShutdownTimeout:          30 * time.Second,
		HandlerTimeout:           30 * time.Second,
		BulkTimeout:              900 * time.Second,
	}
}

// Environment keys recognized by ConfigFromEnv. The set is closed: any
// other key is ignored.
const (
	EnvStage               = "DEPLOY_STAGE"
	EnvPythonGradingQueue  = "PYTHON_GRADING_QUEUE_NAME"
	EnvJupyterGradingQueue = "JUPYTER_GRADING_QUEUE_NAME"
	EnvFlutterGradingQueue = "FLUTTER_GRADING_QUEUE_NAME"
	EnvSendEmailQueue      = "SEND_EMAIL_QUEUE_NAME"
	EnvSendMatrixQueue     = "SEND_MATRIX_QUEUE_NAME"
	EnvPublishQueue        = "PUBLISH_QUEUE_NAME"
)

// ConfigFromEnv builds a Config from DefaultConfig plus the recognized
// environment keys. It is the only place chalk touches the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	switch Stage(os.Getenv(EnvStage)) {
	case StageDev:
		cfg.Stage = StageDev
	case StageProd:
		cfg.Stage = StageProd
	default:
		cfg.Stage = StageLocal
	}

	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.GradingPythonQueue, EnvPythonGradingQueue)
	override(&cfg.GradingJupyterQueue, EnvJupyterGradingQueue)
	override(&cfg.GradingFlutterQueue, EnvFlutterGradingQueue)
	override(&cfg.NotifyEmailQueue, EnvSendEmailQueue)
	override(&cfg.NotifyMatrixQueue, EnvSendMatrixQueue)
	override(&cfg.ProgressPublishQueue, EnvPublishQueue)

	return cfg
}

// LogLevel returns the slog level for the configured stage: Debug on DEV,
// Info everywhere else.
func (c Config) LogLevel() slog.Level {
	if c.Stage == StageDev {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
