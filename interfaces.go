package canfd

// Stack is the upper layer the controller delivers to.
// Every method is called from the controller's transmit or interrupt path
// and must not block.
type Stack interface {
	DeliverFrame(frame Frame) error           // Received frame, an error means it was dropped
	DeliverErrorFrame(frame ErrorFrame) error // Diagnostic frame, an error means it was dropped
	EchoSubmitted(slot TxSlot, frame Frame)   // Frame handed to a hardware slot
	EchoComplete(slot TxSlot)                 // Hardware finished transmitting the slot
	QueueStop()                               // No more transmit requests until QueueResume
	QueueResume()                             // Transmit requests accepted again
	NotifyBusOff()                            // Controller entered bus-off
}

// ResetLine drives the controller reset input
type ResetLine interface {
	Assert()
	Deassert()
}

// Clock gives the controller input clock frequency in Hz
type Clock interface {
	Rate() uint32
}

// Power keeps the controller clocks and power domain enabled
// between Acquire and Release
type Power interface {
	Acquire() error
	Release()
}
