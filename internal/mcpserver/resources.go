package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ResourceSampleDataURI  = "sample://data"
	ResourceSampleDataName = "sample_data"
)

// SampleData is the document served at sample://data.
type SampleData struct {
	Message   string             `json:"message"`
	Timestamp string             `json:"timestamp"`
	Data      SampleDataBody     `json:"data"`
	Metadata  SampleDataMetadata `json:"metadata"`
}

type SampleDataBody struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Features []string `json:"features"`
}

type SampleDataMetadata struct {
	Version  string `json:"version"`
	Source   string `json:"source"`
	ReadOnly bool   `json:"read_only"`
}

func (s *Server) registerResources() {
	sample := mcp.NewResource(ResourceSampleDataURI, ResourceSampleDataName,
		mcp.WithResourceDescription("A simple resource that returns sample JSON data for demonstration purposes"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(sample, s.handleSampleData)
}

func (s *Server) handleSampleData(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(s.SampleData(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample data: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ResourceSampleDataURI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// SampleData builds the sample document, stamped with the current UTC time
// at second precision.
func (s *Server) SampleData() SampleData {
	return SampleData{
		Message:   "This is sample data from an MCP resource",
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05Z"),
		Data: SampleDataBody{
			ID:   1,
			Name: "Sample Resource",
			Type: "demonstration",
			Features: []string{
				"Static data exposure",
				"JSON serialization",
				"MCP resource pattern",
			},
		},
		Metadata: SampleDataMetadata{
			Version:  "1.0.0",
			Source:   "Newsroom MCP Server",
			ReadOnly: true,
		},
	}
}
