package postgresql

// migrations returns the versioned schema DDL applied by the migration
// manager on startup.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS traces (
				id UUID PRIMARY KEY,
				trace_id TEXT NOT NULL,
				execution_id UUID,
				attempt_number INTEGER NOT NULL DEFAULT 0,
				source_service TEXT NOT NULL DEFAULT '',
				destination_service TEXT NOT NULL DEFAULT '',
				workflow_id TEXT NOT NULL,
				action TEXT NOT NULL DEFAULT '',
				user_id TEXT NOT NULL DEFAULT '',
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				responded_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT,
				request_payload JSONB,
				response_payload JSONB,
				overall_status TEXT NOT NULL DEFAULT 'in_progress',
				error_code TEXT NOT NULL DEFAULT '',
				error_detail TEXT NOT NULL DEFAULT '',
				external_execution_id TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_traces_trace_id ON traces (trace_id);
			CREATE INDEX IF NOT EXISTS idx_traces_workflow_id ON traces (workflow_id, requested_at DESC);

			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				trigger_trace_id TEXT NOT NULL DEFAULT '',
				external_execution_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'running',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				final_output JSONB,
				user_id TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions (workflow_id, started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_executions_trigger_trace_id ON executions (trigger_trace_id);

			CREATE TABLE IF NOT EXISTS used_topics (
				id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				headline TEXT NOT NULL,
				headline_hash TEXT NOT NULL,
				used_at TIMESTAMP WITH TIME ZONE NOT NULL,
				metadata JSONB
			);

			CREATE INDEX IF NOT EXISTS idx_used_topics_workflow ON used_topics (workflow_id, used_at DESC);
			CREATE INDEX IF NOT EXISTS idx_used_topics_hash ON used_topics (headline_hash);
		`,
	}
}
