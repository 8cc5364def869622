package worf

// Level is the kind of a notification. Chat drivers pick colors from it.
type Level int

const (
	LevelInfo Level = iota
	LevelError
	LevelSuccess
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	}
	return "info"
}

// NotifyOptions controls how a notification is displayed.
type NotifyOptions struct {
	Markdown bool
	// EphemeralUser restricts the message to a single user when set.
	EphemeralUser string
	// Thread is the message timestamp to reply under.
	Thread string
}

// NotifyOption mutates NotifyOptions
type NotifyOption func(*NotifyOptions)

// Markdown enables markdown rendering.
func Markdown() NotifyOption {
	return func(o *NotifyOptions) { o.Markdown = true }
}

// EphemeralTo shows the message only to userID.
func EphemeralTo(userID string) NotifyOption {
	return func(o *NotifyOptions) { o.EphemeralUser = userID }
}

// InThread replies under the given message timestamp.
func InThread(ts string) NotifyOption {
	return func(o *NotifyOptions) { o.Thread = ts }
}

// ApplyNotifyOptions folds opts into a NotifyOptions value.
func ApplyNotifyOptions(opts ...NotifyOption) NotifyOptions {
	var o NotifyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Notifier delivers status messages back to the chat. Delivery failures are
// the driver's problem; the gateway never retries.
type Notifier interface {
	SendInfo(channel, text string, opts ...NotifyOption)
	SendError(channel, text string, opts ...NotifyOption)
	SendSuccess(channel, text string, opts ...NotifyOption)
}
