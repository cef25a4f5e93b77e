package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/google/jsonschema-go/jsonschema"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is the stdio JSON-RPC MCP server exposing get_context, get_section,
// and add_note over a Store (spec.md §4.E). One connection per process
// lifetime, matching the teacher's single-purpose mcp.Server wrapper
// (internal/mcp.Server) adapted to stdio instead of streamable-HTTP.
type Server struct {
	store *Store
	sdk   *mcp.Server
}

// New builds a Server rooted at ctx's drives directory.
func New(ctx *contextx.Context) *Server {
	store := NewStore(ctx.Store.Layout.Drives())
	s := &Server{store: store}

	sdk := mcp.NewServer(&mcp.Implementation{
		Name:    "agentctl-drive",
		Version: "1.0.0",
	}, nil)

	sdk.AddTool(&mcp.Tool{
		Name:        "get_context",
		Description: "Return a drive's content (or structural outline, if large) resolved by project name or path.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"project": {Type: "string", Description: "A drive name, or a filesystem path to resolve against drive front matter. Defaults to the current working directory."},
			},
		},
	}, s.handleGetContext)

	sdk.AddTool(&mcp.Tool{
		Name:        "get_section",
		Description: "Return a single named section of a file within a drive.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"project", "file", "section"},
			Properties: map[string]*jsonschema.Schema{
				"project": {Type: "string", Description: "Drive name"},
				"file":    {Type: "string", Description: "File within the drive (for directory drives)"},
				"section": {Type: "string", Description: "Heading text to extract"},
			},
		},
	}, s.handleGetSection)

	sdk.AddTool(&mcp.Tool{
		Name:        "add_note",
		Description: "Add a timestamped note to a drive, promoting it to a directory drive if needed.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"project", "title", "content"},
			Properties: map[string]*jsonschema.Schema{
				"project": {Type: "string", Description: "Drive name"},
				"title":   {Type: "string", Description: "Note title"},
				"content": {Type: "string", Description: "Note body"},
			},
		},
	}, s.handleAddNote)

	s.sdk = sdk
	return s
}

// Run blocks serving the three tools over stdio until the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.sdk.Run(ctx, &mcp.StdioTransport{})
}

type getContextArgs struct {
	Project string `json:"project"`
}

func (s *Server) handleGetContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getContextArgs
	if err := unmarshalArgs(req, &args); err != nil {
		return errResult(err), nil
	}

	d, found, err := s.resolveProject(args.Project)
	if err != nil {
		return errResult(err), nil
	}
	if !found {
		if args.Project == "" {
			return errResult(fmt.Errorf("no drive found for current directory")), nil
		}
		drives, _ := s.store.List()
		names := make([]string, 0, len(drives))
		for _, dr := range drives {
			names = append(names, dr.Name)
		}
		data, _ := json.Marshal(map[string]any{"suggestions": names})
		return textResult(string(data)), nil
	}

	large := d.IsLarge()
	var content string
	if large && mqAvailable() {
		content, err = outlineViaMq(ctx, d.Path)
		if err != nil {
			content, err = d.ReadContent()
			if err != nil {
				return errResult(err), nil
			}
		}
	} else {
		content, err = d.ReadContent()
		if err != nil {
			return errResult(err), nil
		}
	}

	header, err := d.Header()
	if err != nil {
		return errResult(err), nil
	}

	out := map[string]any{
		"content": header + "\n" + content,
		"drive":   d.Name,
		"large":   large,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(string(data)), nil
}

type getSectionArgs struct {
	Project string `json:"project"`
	File    string `json:"file"`
	Section string `json:"section"`
}

func (s *Server) handleGetSection(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getSectionArgs
	if err := unmarshalArgs(req, &args); err != nil {
		return errResult(err), nil
	}
	if args.Project == "" || args.Section == "" {
		return errResult(fmt.Errorf("project and section are required")), nil
	}

	d, found, err := s.store.Find(args.Project)
	if err != nil {
		return errResult(err), nil
	}
	if !found {
		return errResult(fmt.Errorf("drive %q not found", args.Project)), nil
	}

	if mqAvailable() {
		path := d.Path
		if d.IsDir && args.File != "" {
			path = path + "/" + args.File
		}
		text, err := sectionViaMq(ctx, path, args.Section)
		if err == nil {
			return textResult(text), nil
		}
	}

	text, err := d.GetSection(args.File, args.Section)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(text), nil
}

type addNoteArgs struct {
	Project string `json:"project"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleAddNote(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addNoteArgs
	if err := unmarshalArgs(req, &args); err != nil {
		return errResult(err), nil
	}
	if args.Project == "" || args.Title == "" {
		return errResult(fmt.Errorf("project and title are required")), nil
	}

	d, found, err := s.store.Find(args.Project)
	if err != nil {
		return errResult(err), nil
	}
	if !found {
		return errResult(fmt.Errorf("drive %q not found", args.Project)), nil
	}

	path, _, err := AddNote(d, args.Title, args.Content, time.Now())
	if err != nil {
		return errResult(err), nil
	}
	return textResult(fmt.Sprintf("Note created at %s", path)), nil
}

// resolveProject implements the get_context resolution order from
// spec.md §4.E: exact drive name, then front-matter project match, then
// (if project was omitted) the current working directory.
func (s *Server) resolveProject(project string) (Drive, bool, error) {
	if project != "" {
		if d, ok, err := s.store.Find(project); err != nil {
			return Drive{}, false, err
		} else if ok {
			return d, true, nil
		}
		return s.store.FindByProject(project)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Drive{}, false, err
	}
	return s.store.FindByProject(cwd)
}

func unmarshalArgs(req *mcp.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
	}
}
