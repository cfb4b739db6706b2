package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/search"
)

type fakeIndex struct {
	searchFn func(ctx context.Context, text string, opts search.Options) (*search.Response, error)
	status   *index.Status
	lastOpts search.Options
}

func (f *fakeIndex) Search(ctx context.Context, text string, opts search.Options) (*search.Response, error) {
	f.lastOpts = opts
	if f.searchFn != nil {
		return f.searchFn(ctx, text, opts)
	}
	return &search.Response{}, nil
}

func (f *fakeIndex) Status(context.Context) (*index.Status, error) {
	if f.status == nil {
		return nil, mserrors.New(mserrors.ErrCodeIndexClosed, "index is closed", nil)
	}
	return f.status, nil
}

func foxIndex() *fakeIndex {
	return &fakeIndex{
		searchFn: func(_ context.Context, _ string, _ search.Options) (*search.Response, error) {
			return &search.Response{
				Results: []*search.Result{result("/notes/fox.md", 0.9, 1, 0.8, "fox")},
				Took:    12 * time.Millisecond,
			}, nil
		},
		status: &index.Status{Root: "/idx", Documents: 3, Chunks: 5, SemanticEnabled: true, ModelVersion: "static:static:256", Dimensions: 256},
	}
}

func newTestServer(t *testing.T, idx Index) *Server {
	t.Helper()
	srv, err := NewServer(idx)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresIndex(t *testing.T) {
	_, err := NewServer(nil)

	assert.Error(t, err)
}

func TestServer_Info(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	name, ver := srv.Info()

	assert.Equal(t, "multisearch", name)
	assert.NotEmpty(t, ver)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_ListTools(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	got := srv.ListTools()

	require.Len(t, got, 2)
	assert.Equal(t, "search", got[0].Name)
	assert.Equal(t, "index_status", got[1].Name)
}

func TestCallTool_Search_ReturnsMarkdown(t *testing.T) {
	// Given: an index with one fox document
	idx := foxIndex()
	srv := newTestServer(t, idx)

	// When: calling search
	out, err := srv.CallTool(context.Background(), "search", map[string]any{
		"query":        "fox",
		"limit":        float64(5),
		"keyword_only": true,
	})

	// Then: markdown comes back and the options reach the index
	require.NoError(t, err)
	text, ok := out.(string)
	require.True(t, ok, "expected string, got %T", out)
	assert.Contains(t, text, "/notes/fox.md")
	assert.Equal(t, 5, idx.lastOpts.Limit)
	assert.True(t, idx.lastOpts.KeywordOnly)
}

func TestCallTool_Search_ClampsLimit(t *testing.T) {
	idx := &fakeIndex{}
	srv := newTestServer(t, idx)

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "fox", "limit": float64(1000)})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, idx.lastOpts.Limit)

	_, err = srv.CallTool(context.Background(), "search", map[string]any{"query": "fox"})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, idx.lastOpts.Limit)
}

func TestCallTool_Search_RejectsBlankQuery(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	for _, args := range []map[string]any{{}, {"query": ""}, {"query": "   "}, {"query": 42}} {
		_, err := srv.CallTool(context.Background(), "search", args)

		var me *MCPError
		require.ErrorAs(t, err, &me, "args %v", args)
		assert.Equal(t, ErrCodeInvalidParams, me.Code)
	}
}

func TestCallTool_Search_MapsIndexErrors(t *testing.T) {
	idx := &fakeIndex{searchFn: func(context.Context, string, search.Options) (*search.Response, error) {
		return nil, mserrors.QueryTimeout(context.DeadlineExceeded)
	}}
	srv := newTestServer(t, idx)

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "fox"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeTimeout, me.Code)
}

func TestCallTool_IndexStatus(t *testing.T) {
	srv := newTestServer(t, foxIndex())

	out, err := srv.CallTool(context.Background(), "index_status", nil)

	require.NoError(t, err)
	st, ok := out.(IndexStatusOutput)
	require.True(t, ok, "expected IndexStatusOutput, got %T", out)
	assert.Equal(t, "/idx", st.Root)
	assert.Equal(t, 3, st.Stats.Documents)
	assert.Equal(t, "low", st.Embeddings.SemanticQuality)
}

func TestCallTool_IndexStatus_Closed(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	_, err := srv.CallTool(context.Background(), "index_status", nil)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeIndexUnavailable, me.Code)
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeMethodNotFound, me.Code)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv := newTestServer(t, &fakeIndex{})

	err := srv.Serve(context.Background(), "sse")

	assert.ErrorContains(t, err, "unknown transport")
}

// connect wires an SDK client to srv over in-memory transports.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func decode[T any](t *testing.T, v any) T {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestProtocol_ListAndCallTools(t *testing.T) {
	// Given: a client connected over the protocol
	cs := connect(t, newTestServer(t, foxIndex()))
	ctx := context.Background()

	// When: listing tools
	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)

	// Then: both tools are advertised
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "index_status"}, names)

	// When: calling search
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "fox"},
	})

	// Then: structured results come back
	require.NoError(t, err)
	require.False(t, res.IsError)
	out := decode[SearchOutput](t, res.StructuredContent)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "/notes/fox.md", out.Results[0].Path)
	assert.Equal(t, int64(12), out.TookMS)
}

func TestProtocol_SearchErrorIsToolError(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeIndex{}))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "  "},
	})

	require.NoError(t, err)
	assert.True(t, res.IsError)
}
