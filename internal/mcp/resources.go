package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	jobsURI      = "sftocsv://jobs"
	runsURI      = "sftocsv://runs"
	jobURIPrefix = "sftocsv://jobs/"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		jobsURI,
		"All Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	s.mcp.AddResource(mcp.NewResource(
		runsURI,
		"Recent Runs",
		mcp.WithMIMEType("application/json"),
	), s.handleRunsResource)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			jobURIPrefix+"{job}",
			"Job Definition",
		),
		s.handleJobResource,
	)
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		return nil, err
	}

	type jobSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Trigger    string `json:"trigger"`
		LastStatus string `json:"lastStatus,omitempty"`
	}
	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		sum := jobSummary{ID: j.Job.ID, Name: j.Job.Name, Trigger: j.Job.Trigger.Type}
		if j.Status != nil {
			sum.LastStatus = j.Status.LastStatus
		}
		summaries = append(summaries, sum)
	}
	return jsonContents(jobsURI, summaries)
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.jobs.ListRunLogs("", 50)
	if err != nil {
		return nil, err
	}
	return jsonContents(runsURI, runs)
}

func (s *Server) handleJobResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	ref := strings.TrimPrefix(uri, jobURIPrefix)
	if ref == "" || ref == uri {
		return nil, fmt.Errorf("could not extract job from URI: %s", uri)
	}
	job, err := s.jobs.GetJob(ref)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, job)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
