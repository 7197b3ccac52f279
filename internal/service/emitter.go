package service

// Emitter is the push fabric as the services see it. Emissions are
// fire-and-forget; a failed or roomless emit never fails the operation that
// triggered it.
type Emitter interface {
	Emit(room, event string, payload any)
}

// Room name builders shared by the demultiplexer and the flow service.
func userRoom(userID uint64) string { return "user:" + formatUint(userID) }
func flowRoom(flowID string) string { return "flow:" + flowID }
func jobRoom(jobID string) string   { return "job:" + jobID }

// nopEmitter is used when no push fabric is wired, so services never
// nil-check before emitting.
type nopEmitter struct{}

func (nopEmitter) Emit(string, string, any) {}
