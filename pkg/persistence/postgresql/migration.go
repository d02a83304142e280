package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				object_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused')),
				entry_condition JSONB NOT NULL DEFAULT '{}',
				settings JSONB NOT NULL DEFAULT '{}',
				start_step_id VARCHAR(255),
				revision INT NOT NULL DEFAULT 0,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_tenant_object_type ON workflows(tenant_id, object_type) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_status ON workflows(status);

			CREATE TABLE workflow_steps (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				step_type VARCHAR(50) NOT NULL,
				action_type VARCHAR(100),
				config JSONB,
				next_step_id VARCHAR(255),
				condition JSONB,
				branches JSONB,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_revisions (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				tenant_id VARCHAR(255) NOT NULL,
				revision INT NOT NULL,
				start_step_id VARCHAR(255),
				steps JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (workflow_id, revision)
			);
		`,
		2: `
			-- Executions and their audit log
			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				workflow_revision INT NOT NULL,
				record_id VARCHAR(255) NOT NULL,
				record_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'waiting', 'completed', 'failed', 'cancelled')),
				current_step_id VARCHAR(255),
				previous_step_id VARCHAR(255),
				scheduled_at TIMESTAMP WITH TIME ZONE,
				metadata JSONB NOT NULL DEFAULT '{}',
				version BIGINT NOT NULL DEFAULT 1,
				lease_until TIMESTAMP WITH TIME ZONE,
				dispatch_pending BOOLEAN NOT NULL DEFAULT false,
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX uq_workflow_executions_live
				ON workflow_executions(workflow_id, record_id)
				WHERE status IN ('running', 'waiting');
			CREATE INDEX idx_workflow_executions_record ON workflow_executions(tenant_id, record_type, record_id);
			CREATE INDEX idx_workflow_executions_workflow ON workflow_executions(tenant_id, workflow_id, enrolled_at DESC);

			CREATE TABLE workflow_execution_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES workflow_executions(id),
				tenant_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255),
				event_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_execution_logs_execution ON workflow_execution_logs(execution_id, created_at);
		`,
		3: `
			-- Business records read by the engine. Attributes live in data.
			CREATE TABLE IF NOT EXISTS pets (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS owners (LIKE pets INCLUDING ALL);
			CREATE TABLE IF NOT EXISTS bookings (LIKE pets INCLUDING ALL);
			CREATE TABLE IF NOT EXISTS invoices (LIKE pets INCLUDING ALL);
			CREATE TABLE IF NOT EXISTS payments (LIKE pets INCLUDING ALL);
			CREATE TABLE IF NOT EXISTS tasks (LIKE pets INCLUDING ALL);

			CREATE INDEX IF NOT EXISTS idx_pets_tenant ON pets(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_owners_tenant ON owners(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_bookings_tenant ON bookings(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_invoices_tenant ON invoices(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_payments_tenant ON payments(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON tasks(tenant_id);
		`,
	}
}
