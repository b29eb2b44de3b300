package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect  ReasonCode = "stt_connect"
	ReasonSTTSend     ReasonCode = "stt_send"
	ReasonSTTFinalize ReasonCode = "stt_finalize"

	ReasonVADInit    ReasonCode = "vad_init"
	ReasonVADProcess ReasonCode = "vad_process"

	ReasonConfig        ReasonCode = "config"
	ReasonTransportSend ReasonCode = "transport_send"
)
