package frames

// Meta keys shared across the pipeline.
const (
	MetaStreamID   = "stream_id"
	MetaUserID     = "user_id"
	MetaTraceID    = "trace_id"
	MetaSource     = "source"
	MetaIsFinal    = "is_final"
	MetaLanguage   = "language"
	MetaModel      = "model"
	MetaSampleRate = "sample_rate"
	MetaReason     = "reason"
)
