package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	courseField  = Field{Name: "course_id", Aliases: []string{"course", "c"}, Prompt: "course_id", Type: FieldString, Required: true, InPath: true}
	requestField = Field{Name: "request_id", Aliases: []string{"request", "id"}, Prompt: "request_id", Type: FieldString, Required: true, InPath: true}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "course",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/courses",
			Usage:        "course list",
		},
		{
			Service:      "course",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id",
			Fields:       []Field{courseField},
			Usage:        "course get course_id=cs101",
		},
		{
			Service:      "course",
			Action:       "put",
			Method:       "PUT",
			PathTemplate: "/api/v1/courses/:course_id",
			Fields: []Field{
				courseField,
				{Name: "name", Prompt: "name", Type: FieldString, Required: true},
				{Name: "location", Prompt: "location", Type: FieldString},
				{Name: "schedule", Prompt: "schedule (JSON)", Type: FieldJSON},
				{Name: "resources", Prompt: "resources (JSON)", Type: FieldJSON},
			},
			Usage: `course put course_id=cs101 name="Intro to CS" location="Room 101"`,
		},
		{
			Service:      "course",
			Action:       "join",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/join",
			Fields:       []Field{courseField},
			Usage:        "course join course_id=cs101",
		},
		{
			Service:      "course",
			Action:       "grant",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/members",
			Fields: []Field{
				courseField,
				{Name: "user_id", Aliases: []string{"user"}, Prompt: "user_id", Type: FieldString, Required: true},
				{Name: "role", Prompt: "role (student|helper|admin)", Type: FieldString, Required: true},
			},
			Usage: "course grant course_id=cs101 user_id=helen role=helper",
		},
		{
			Service:      "request",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/requests",
			Fields: []Field{
				courseField,
				{Name: "content", Prompt: "content (JSON)", Type: FieldJSON, Required: true},
				{Name: "content_file", Prompt: "content_file", Type: FieldFile},
			},
			Usage: `request submit course_id=cs101 content='{"topic":"recursion"}'`,
		},
		{
			Service:      "request",
			Action:       "edit",
			Method:       "PUT",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id",
			Fields: []Field{
				courseField,
				requestField,
				{Name: "content", Prompt: "content (JSON)", Type: FieldJSON, Required: true},
				{Name: "content_file", Prompt: "content_file", Type: FieldFile},
			},
			Usage: `request edit course_id=cs101 request_id=r1 content='{"topic":"loops"}'`,
		},
		{
			Service:      "request",
			Action:       "patch",
			Method:       "PATCH",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id",
			Fields: []Field{
				courseField,
				requestField,
				{Name: "fields", Prompt: "fields (JSON object)", Type: FieldJSON, Required: true},
			},
			Usage: `request patch course_id=cs101 request_id=r1 fields='{"location":"table 4"}'`,
		},
		{
			Service:      "request",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id",
			Fields:       []Field{courseField, requestField},
			Usage:        "request get course_id=cs101 request_id=r1",
		},
		{
			Service:      "request",
			Action:       "status",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id/status",
			Fields: []Field{
				courseField,
				requestField,
				{Name: "status", Aliases: []string{"to"}, Prompt: "status", Type: FieldString, Required: true},
			},
			Usage: "request status course_id=cs101 request_id=r1 status=PENDING",
		},
		{
			Service:      "request",
			Action:       "comment",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id/comments",
			Fields: []Field{
				courseField,
				requestField,
				{Name: "text", Prompt: "text", Type: FieldString, Required: true},
			},
			Usage: `request comment course_id=cs101 request_id=r1 text="on my way"`,
		},
		{
			Service:      "request",
			Action:       "events",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id/requests/:request_id/events",
			Fields:       []Field{courseField, requestField},
			Usage:        "request events course_id=cs101 request_id=r1",
		},
		{
			Service:      "request",
			Action:       "history",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id/history",
			Fields: []Field{
				courseField,
				{Name: "limit", Prompt: "limit", Type: FieldInt},
			},
			Usage: "request history course_id=cs101 limit=20",
		},
		{
			Service:      "queue",
			Action:       "order",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id/order",
			Fields:       []Field{courseField},
			Usage:        "queue order course_id=cs101",
		},
		{
			Service:      "queue",
			Action:       "statuses",
			Method:       "GET",
			PathTemplate: "/api/v1/courses/:course_id/statuses",
			Fields:       []Field{courseField},
			Usage:        "queue statuses course_id=cs101",
		},
		{
			Service:      "queue",
			Action:       "claim",
			Method:       "POST",
			PathTemplate: "/api/v1/courses/:course_id/claim",
			Fields:       []Field{courseField},
			Usage:        "queue claim course_id=cs101",
		},
		{
			Service:      "auth",
			Action:       "logout",
			Method:       "POST",
			PathTemplate: "/api/v1/auth/logout",
			Usage:        "auth logout",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// Usages lists the example line of every command, sorted.
func Usages(commands map[string]Command) []string {
	out := make([]string, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd.Usage)
	}
	sort.Strings(out)
	return out
}

// BuildRequest creates the HTTP request for a command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, field := range cmd.Fields {
		if !field.InPath {
			continue
		}
		placeholder := ":" + field.Name
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: %s", field.Name)
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	if cmd.Method == "GET" {
		query := url.Values{}
		for _, field := range cmd.Fields {
			if field.InPath || params.Get(field.Name) == "" {
				continue
			}
			if field.Type == FieldInt {
				if _, err := ParseInt(params.Get(field.Name)); err != nil {
					return "", fmt.Errorf("invalid %s: %w", field.Name, err)
				}
			}
			query.Set(field.Name, params.Get(field.Name))
		}
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "course":
		switch cmd.Action {
		case "put":
			payload := map[string]interface{}{
				"name":     params.Get("name"),
				"location": params.Get("location"),
			}
			for _, key := range []string{"schedule", "resources"} {
				if params.Get(key) == "" {
					continue
				}
				raw, err := ParseJSON(params.Get(key))
				if err != nil {
					return nil, fmt.Errorf("invalid %s: %w", key, err)
				}
				payload[key] = raw
			}
			return payload, nil
		case "grant":
			return map[string]string{
				"userId": params.Get("user_id"),
				"role":   params.Get("role"),
			}, nil
		}
	case "request":
		switch cmd.Action {
		case "submit", "edit":
			content, err := parseJSONOrFile(params, "content", "content_file")
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"content": content}, nil
		case "patch":
			fields, err := ParseJSON(params.Get("fields"))
			if err != nil {
				return nil, fmt.Errorf("invalid fields: %w", err)
			}
			return fields, nil
		case "status":
			return map[string]string{"status": strings.ToUpper(params.Get("status"))}, nil
		case "comment":
			return map[string]string{"text": params.Get("text")}, nil
		}
	}
	return nil, nil
}

func parseJSONOrFile(params Params, key, fileKey string) (json.RawMessage, error) {
	value := params.Get(key)
	if (value == "" || value == "_file_") && params.Get(fileKey) != "" {
		data, err := ReadFile(params.Get(fileKey))
		if err != nil {
			return nil, err
		}
		value = data
	}
	if value == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	return ParseJSON(value)
}
