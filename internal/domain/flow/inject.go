package flow

import (
	"time"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// Metadata keys injected into every job's data so downstream workers can
// report back against the right flow.
const (
	DataKeyFlowID   = "flowId"
	DataKeyMetadata = "_flowMetadata"
)

// InjectMetadata walks the job tree and stamps every node's data with the
// flow id and a metadata block. The input spec is returned with fresh data
// maps; callers keep their request untouched.
func InjectMetadata(spec model.FlowJobSpec, flowID, parentFlowName string, now time.Time) model.FlowJobSpec {
	out := spec
	out.Data = make(map[string]any, len(spec.Data)+2)
	for k, v := range spec.Data {
		out.Data[k] = v
	}
	out.Data[DataKeyFlowID] = flowID
	out.Data[DataKeyMetadata] = map[string]any{
		"flowId":         flowID,
		"parentFlowName": parentFlowName,
		"injectedAt":     now.UTC().Format(time.RFC3339),
	}

	if len(spec.Children) > 0 {
		out.Children = make([]model.FlowJobSpec, len(spec.Children))
		for i := range spec.Children {
			out.Children[i] = InjectMetadata(spec.Children[i], flowID, parentFlowName, now)
		}
	}
	return out
}

// StripMetadata removes injected keys from a job tree, reconstructing the
// shape of the original creation request.
func StripMetadata(spec model.FlowJobSpec) model.FlowJobSpec {
	out := spec
	if len(spec.Data) > 0 {
		out.Data = make(map[string]any, len(spec.Data))
		for k, v := range spec.Data {
			if k == DataKeyFlowID || k == DataKeyMetadata {
				continue
			}
			out.Data[k] = v
		}
		if len(out.Data) == 0 {
			out.Data = nil
		}
	}
	if len(spec.Children) > 0 {
		out.Children = make([]model.FlowJobSpec, len(spec.Children))
		for i := range spec.Children {
			out.Children[i] = StripMetadata(spec.Children[i])
		}
	}
	return out
}
