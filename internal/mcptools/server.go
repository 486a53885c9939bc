package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewEditorMCPServer creates an MCP server with the roadmap editing tools registered.
func NewEditorMCPServer(svc *EditorService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "roadmap-editor",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_graph",
		Description: "Return every course node and prerequisite edge on the roadmap, with summary counts, the session state and undo/redo availability.",
	}, svc.GetGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_course",
		Description: "Place a new course node on the canvas. An id is generated when none is given.",
	}, svc.AddCourse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_course",
		Description: "Change fields of a course's data. Omitted fields are left alone. Marking a course completed stamps completedAt.",
	}, svc.UpdateCourse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_course",
		Description: "Move a course node to a new canvas position.",
	}, svc.MoveCourse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_course",
		Description: "Remove a course node together with every edge that starts or ends at it.",
	}, svc.DeleteCourse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_course",
		Description: "Mark a course as the active one. An empty id clears the selection.",
	}, svc.SelectCourse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connect_courses",
		Description: "Draw a prerequisite edge from source to target. Handles are normalized; connecting the same anchors again replaces the existing edge.",
	}, svc.ConnectCourses)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "disconnect",
		Description: "Remove a prerequisite edge by id.",
	}, svc.Disconnect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "undo",
		Description: "Revert the most recent edit.",
	}, svc.Undo)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "redo",
		Description: "Re-apply the most recently undone edit.",
	}, svc.Redo)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_roadmap",
		Description: "Persist the roadmap metadata, nodes and edges to the roadmap server.",
	}, svc.SaveRoadmap)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "normalize_handle",
		Description: "Map an anchor id in any legacy spelling (e.g. right-target, bottom-source-source) to its canonical form for the given role.",
	}, svc.NormalizeHandle)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_roadmap",
		Description: "Render the roadmap as a Mermaid diagram or as a term-by-term Markdown study plan.",
	}, svc.ExportRoadmap)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP until ctx is cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
