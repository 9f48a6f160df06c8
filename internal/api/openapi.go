package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the routes setupRoutes registers.
func buildOpenAPIDoc() map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	op := func(id, summary string, responses map[string]any) map[string]any {
		return map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   responses,
			"security":    secured,
		}
	}
	desc := func(s string) map[string]any { return map[string]any{"description": s} }

	recovery := op("submitRecovery", "Answer the halted-program prompt", map[string]any{
		"202": desc("Decision taken by the engine"),
		"400": desc("Unknown decision"),
		"409": desc("Controller is not waiting for a decision"),
		"503": desc("Recovery is not taken over the API"),
	})
	recovery["requestBody"] = map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type":     "object",
					"required": []string{"decision"},
					"properties": map[string]any{
						"decision": map[string]any{"type": "string", "enum": []string{"resume", "restart", "home"}},
					},
				},
			},
		},
	}

	healthz := op("healthz", "Liveness and engine cycle", map[string]any{"200": desc("OK")})
	delete(healthz, "security")

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "portmark",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz":      map[string]any{"get": healthz},
			"/status":       map[string]any{"get": op("getStatus", "Engine status", map[string]any{"200": desc("OK")})},
			"/plan":         map[string]any{"get": op("getPlan", "Job plan and pending tasks", map[string]any{"200": desc("OK")})},
			"/events":       map[string]any{"get": op("streamEvents", "Server-sent run events", map[string]any{"200": desc("text/event-stream")})},
			"/recovery":     map[string]any{"post": recovery},
			"/runs":         map[string]any{"get": op("listRuns", "Recent runs", map[string]any{"200": desc("OK"), "400": desc("Bad limit")})},
			"/runs/{runID}": map[string]any{"get": op("getRun", "One run", map[string]any{"200": desc("OK"), "404": desc("Not found")})},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
