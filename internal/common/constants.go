package common

// Feature names shared by the schemas, the models and the API.
const (
	FeatureAttendancePercentage = "attendance_percentage"
	FeatureBestOfTwoInternals   = "best_of_two_internals"
	FeatureAssignmentMarks      = "assignment_marks"
	FeatureBehaviorScore        = "behavior_score"

	FeatureMeanSubjectPrediction = "mean_subject_prediction"
	FeatureActiveBacklogCount    = "active_backlog_count"
	FeaturePreviousSGPA          = "previous_sgpa"
	FeatureAttendanceAverage     = "attendance_average"
)

// Training targets
const (
	TargetFinalMarks = "final_marks"
	TargetSGPA       = "sgpa"
)

// Model names used as storage keys and in the API
const (
	SubjectModelName = "subject_predictor"
	SGPAModelName    = "sgpa_predictor"
)

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvPort              = "PORT"
	EnvDataPath          = "DATA_PATH"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvWorkers           = "WORKERS"
	EnvQueueSize         = "QUEUE_SIZE"
	EnvStrategy          = "PREDICTION_STRATEGY"
	EnvAutoTrain         = "AUTO_TRAIN"
	EnvTrainingSamples   = "TRAINING_SAMPLES"
	EnvSeed              = "SEED"
	EnvForestTrees       = "FOREST_TREES"
	EnvForestMaxDepth    = "FOREST_MAX_DEPTH"
	EnvBoostingStages    = "BOOSTING_STAGES"
	EnvBoostingMaxDepth  = "BOOSTING_MAX_DEPTH"
	EnvLearningRate      = "LEARNING_RATE"
	EnvRetrainSchedule   = "RETRAIN_SCHEDULE"
	EnvCacheTTL          = "CACHE_TTL"
	EnvRateLimit         = "RATE_LIMIT"
	EnvRateBurst         = "RATE_BURST"
	EnvRangeCheck        = "RANGE_CHECK"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvDashboardEnabled  = "DASHBOARD_ENABLED"
	EnvDashboardInterval = "DASHBOARD_INTERVAL"
	EnvServiceURL        = "RISK_SERVICE_URL"
	EnvMetricsPath       = "METRICS_PATH"
	EnvEnvFile           = "ENV_FILE"
	EnvHistoryQueue      = "HISTORY_QUEUE"
)

// Configuration defaults
const (
	DefaultPort              = 8000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultWorkers           = 4
	DefaultQueueSize         = 64
	DefaultStrategy          = "auto"
	DefaultAutoTrain         = true
	DefaultTrainingSamples   = 1000
	DefaultSeed              = 42
	DefaultForestTrees       = 100
	DefaultForestMaxDepth    = 10
	DefaultBoostingStages    = 100
	DefaultBoostingMaxDepth  = 6
	DefaultLearningRate      = 0.1
	DefaultRateLimit         = 50.0
	DefaultRateBurst         = 100
	DefaultServiceURL        = "http://localhost:8000"
	DefaultPreviousSGPA      = 7.0
	DefaultActiveBacklogs    = 0.0
	DefaultModelVersion      = "1.0"
	RulesModelVersion        = "rules-1.0"
	DefaultTestRatio         = 0.2
	DefaultDashboardInterval = "5s"
	DefaultMetricsPath       = "/metrics"
	DefaultEnvFile           = ".env"
	DefaultHistoryQueue      = 1024
)

// Validation constants
const (
	MinPort            = 1024
	MaxPort            = 65535
	MinWorkers         = 1
	MaxWorkers         = 256
	MaxTrainingSamples = 1000000
	MinTrainingSamples = 10
	MaxForestTrees     = 1000
	MaxTreeDepth       = 32
	MaxBoostingStages  = 2000
)
