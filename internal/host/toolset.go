package host

import (
	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/registry"
	"github.com/bsakel/denbot/internal/tools"
)

// toolsFor assembles an agent's tool registry. Routers get the full set,
// including delegation and task management; specialists get the working set
// only, so a delegated run cannot re-delegate and loop. A non-empty
// spec.Tools narrows the set further by name.
func (h *Host) toolsFor(spec registry.AgentSpec, groupName string) *tools.Registry {
	reg := tools.NewRegistry()

	base := []tools.Tool{
		&tools.ReadFileTool{Guard: h.Guard},
		&tools.WriteFileTool{Guard: h.Guard},
		&tools.EditFileTool{Guard: h.Guard},
		&tools.ListDirTool{Guard: h.Guard},
		&tools.MessageTool{Producer: h.Producer, GroupName: groupName},
		&tools.UpdateMemoryTool{Producer: h.Producer, GroupName: groupName, AuthorID: spec.ID},
	}
	routerOnly := []tools.Tool{
		&tools.ScheduleTaskTool{Producer: h.Producer, GroupName: groupName},
		&tools.TaskControlTool{Producer: h.Producer, GroupName: groupName, Action: mailbox.TypePauseTask, Timeout: h.ListTimeout},
		&tools.TaskControlTool{Producer: h.Producer, GroupName: groupName, Action: mailbox.TypeResumeTask, Timeout: h.ListTimeout},
		&tools.TaskControlTool{Producer: h.Producer, GroupName: groupName, Action: mailbox.TypeCancelTask, Timeout: h.ListTimeout},
		&tools.ListTasksTool{Producer: h.Producer, GroupName: groupName, Timeout: h.ListTimeout},
		&tools.DelegateTool{Producer: h.Producer, GroupName: groupName, Timeout: h.DelegateTimeout},
		&tools.ListAgentsTool{Producer: h.Producer, GroupName: groupName, Timeout: h.ListTimeout},
	}

	all := base
	if spec.IsRouter {
		all = append(all, routerOnly...)
	}

	allowed := map[string]bool{}
	for _, name := range spec.Tools {
		allowed[name] = true
	}
	for _, t := range all {
		if len(allowed) > 0 && !allowed[t.Name()] {
			continue
		}
		reg.Register(t)
	}
	return reg
}
