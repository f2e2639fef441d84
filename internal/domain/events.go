package domain

// Event is a tagged progress/status notification published to the
// external sink. One closed variant exists per wire "type" value;
// serialization happens at the boundary.
type Event interface {
	EventType() string
}

// Progress stages
const (
	StageBuilding    = "building"
	StageWriting     = "writing"
	StageOTAUpload   = "ota_upload"
	StageConfiguring = "configuring"
)

// Queue status values carried by FlashQueueStatus (a superset of the
// session statuses: device_detected is announced between hunting and
// the flash itself)
const (
	QueueBuilding       = "building"
	QueueHunting        = "hunting"
	QueueDeviceDetected = "device_detected"
	QueueFlashing       = "flashing"
	QueueCancelled      = "cancelled"
	QueueExpired        = "expired"
	QueueFailed         = "failed"
)

// FlashProgress reports per-line progress from the build/upload tool
type FlashProgress struct {
	Type    string `json:"type"`
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func NewFlashProgress(percent int, stage, message string) FlashProgress {
	return FlashProgress{Type: "flash_progress", Percent: percent, Stage: stage, Message: message}
}

func (e FlashProgress) EventType() string { return e.Type }

// FlashQueueStatus announces a session status change with a snapshot
type FlashQueueStatus struct {
	Type    string         `json:"type"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Queue   *QueueSnapshot `json:"queue"`
}

func NewFlashQueueStatus(status, message string, queue *QueueSnapshot) FlashQueueStatus {
	return FlashQueueStatus{Type: "flash_queue_status", Status: status, Message: message, Queue: queue}
}

func (e FlashQueueStatus) EventType() string { return e.Type }

// FlashComplete reports the final outcome of an upload
type FlashComplete struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewFlashComplete(success bool, message string) FlashComplete {
	return FlashComplete{Type: "flash_complete", Success: success, Message: message}
}

func (e FlashComplete) EventType() string { return e.Type }

// ConfigPending announces a deferred configuration command to apply
// once the device reconnects. Actual application happens out-of-band.
type ConfigPending struct {
	Type        string `json:"type"`
	ConfigType  string `json:"config_type"`
	IntervalSec int    `json:"interval_sec"`
	Message     string `json:"message"`
}

func NewSleepIntervalPending(intervalSec int, message string) ConfigPending {
	return ConfigPending{Type: "config_pending", ConfigType: "sleep_interval", IntervalSec: intervalSec, Message: message}
}

func (e ConfigPending) EventType() string { return e.Type }
