package core

// Topic names which snapshot a change affects.
type Topic int

const (
	TopicDevices Topic = iota + 1
	TopicUsers
)

func (t Topic) String() string {
	switch t {
	case TopicDevices:
		return "devices"
	case TopicUsers:
		return "users"
	}
	return "unknown"
}

// Observer is notified synchronously, on the loop, after a mutation is applied.
type Observer interface {
	Changed(t Topic)
}

// feed is embedded by components that emit changes.
type feed struct {
	subs []Observer
}

func (f *feed) Subscribe(o Observer) {
	f.subs = append(f.subs, o)
}

func (f *feed) emit(t Topic) {
	for _, o := range f.subs {
		o.Changed(t)
	}
}
