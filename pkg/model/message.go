package model

// Kind identifies what a Message reports.
type Kind string

const (
	// KindJobDone is sent by a Job when its workload returns.
	KindJobDone Kind = "job-done"
	// KindItemAdded is sent by a ListModel after an item joined the tree.
	KindItemAdded Kind = "item-added"
	// KindItemUpdated is sent by a ListModel after an item's value changed.
	KindItemUpdated Kind = "item-updated"
	// KindItemRemoved is sent by a ListModel before an item leaves the tree.
	// Receivers must call RemovalAcknowledged once they dropped the item.
	KindItemRemoved Kind = "item-removed"
)

// Message is the unit of delivery from a model to its controllers.
// Model and Version are filled in by the model when the message is sent.
type Message struct {
	Kind    Kind
	Model   string
	Version uint64
	Payload interface{}
}

// JobResult is the payload of a KindJobDone message.
type JobResult struct {
	Completed bool
}

// ItemEvent is the payload of the list model item messages.
type ItemEvent struct {
	Key       string
	ParentKey string
	Item      *Item
}
