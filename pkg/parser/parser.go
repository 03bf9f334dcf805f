// Package parser holds the decoded shapes produced from raw contract logs.
package parser

// DecodedLog is an event log decoded against a contract ABI. Indexed
// arguments are available positionally through Arguments, non-indexed ones
// by name through OutputData.
type DecodedLog struct {
	// BlockNumber is the block the log was emitted in
	BlockNumber uint64
	// LogIndex is the position of the log in the block
	LogIndex uint64
	// TransactionHash of the emitting transaction
	TransactionHash string
	// Address is the contract address that emitted the event
	Address string
	// Arguments contains every event parameter in ABI order
	Arguments []Argument
	// EventName is the name of the emitted event
	EventName string
	// OutputData contains the decoded non-indexed parameters keyed by name
	OutputData map[string]interface{}
}

// Argument is a single event parameter.
type Argument struct {
	Name    string
	Type    string
	Value   interface{}
	Indexed bool
}

// FindArgument returns the argument with the given name, or nil.
func (d *DecodedLog) FindArgument(name string) *Argument {
	for i := range d.Arguments {
		if d.Arguments[i].Name == name {
			return &d.Arguments[i]
		}
	}
	return nil
}
