package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
)

// ReadCapabilityCandidates are the names tried, in order, when looking for a
// file-reading capability.
var ReadCapabilityCandidates = []string{"read_file_mcp", "read_file", "readfile", "read_from_file"}

// DefaultFilePath is used when an instruction asks to read a file without naming one.
const DefaultFilePath = "sample.txt"

// FindReadCapability picks the file-reading capability from caps: a known name
// first, then any name containing both "read" and "file".
func FindReadCapability(caps []capability.Descriptor) (capability.Descriptor, bool) {
	for _, candidate := range ReadCapabilityCandidates {
		for _, c := range caps {
			if c.Name == candidate {
				return c, true
			}
		}
	}
	for _, c := range caps {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, "read") && strings.Contains(name, "file") {
			return c, true
		}
	}
	return capability.Descriptor{}, false
}

var fileNamePattern = regexp.MustCompile(`[\w./-]+\.[A-Za-z0-9]{1,8}\b`)

var readWords = []string{"read", "file", "summarize", "summarise", "content", "open", "show"}

// KeywordPlanner plans without a language model: instructions that talk about a
// file go to the read capability, an instruction naming a capability goes to that
// capability, and anything else is not actionable.
type KeywordPlanner struct{}

// Plan implements Planner.
func (KeywordPlanner) Plan(_ context.Context, instruction string, caps []capability.Descriptor) (*Plan, error) {
	lower := strings.ToLower(instruction)

	for _, c := range caps {
		if c.Name != "" && strings.Contains(lower, strings.ToLower(c.Name)) && !isRead(c) {
			return &Plan{
				Capability: c.Name,
				Arguments:  map[string]interface{}{},
				Reasoning:  fmt.Sprintf("The instruction names %s.", c.Name),
			}, nil
		}
	}

	if mentionsFile(lower) {
		if c, ok := FindReadCapability(caps); ok {
			path := fileNamePattern.FindString(instruction)
			if path == "" {
				path = DefaultFilePath
			}
			return &Plan{
				Capability: c.Name,
				Arguments:  map[string]interface{}{pathParameter(c): path},
				Reasoning:  fmt.Sprintf("The instruction refers to file content; reading %s.", path),
			}, nil
		}
	}

	return nil, invocation.Errorf(invocation.CodeNoApplicableCapability, "no capability matches %q", instruction)
}

func isRead(c capability.Descriptor) bool {
	for _, name := range ReadCapabilityCandidates {
		if c.Name == name {
			return true
		}
	}
	return false
}

func mentionsFile(lower string) bool {
	if fileNamePattern.MatchString(lower) {
		return true
	}
	for _, w := range readWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func pathParameter(c capability.Descriptor) string {
	for _, name := range []string{"path", "file", "filename", "file_path"} {
		if _, ok := c.Parameter(name); ok {
			return name
		}
	}
	if req := c.Required(); len(req) == 1 {
		return req[0]
	}
	return "path"
}

// TemplateComposer composes without a language model by quoting the result.
type TemplateComposer struct{}

// Compose implements Composer.
func (TemplateComposer) Compose(_ context.Context, instruction string, plan *Plan, result *invocation.Result) (string, error) {
	content := ""
	if result != nil {
		content = strings.TrimSpace(result.Content)
	}
	name := "capability"
	if plan != nil && plan.Capability != "" {
		name = plan.Capability
	}
	if content == "" {
		return fmt.Sprintf("%s returned no content for: %s", name, instruction), nil
	}
	return content, nil
}
