package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for referral workflow and
// intake package tracking
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	// Create extension for UUID generation
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`); err != nil {
		return fmt.Errorf("failed to create extension: %w", err)
	}

	// Create tables
	tables := []string{
		createReferralsTable,
		createIntakePackagesTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes
	indexes := []string{
		createReferralsIndexes,
		createIntakePackagesIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// SQL DDL statements for table creation
const (
	createReferralsTable = `
		CREATE TABLE IF NOT EXISTS referrals (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			email VARCHAR(255) NOT NULL,
			phone VARCHAR(50),
			age INTEGER,
			presenting_concerns TEXT,
			urgency VARCHAR(20) NOT NULL DEFAULT 'routine',
			insurance_provider VARCHAR(100),
			insurance_member_id VARCHAR(100),
			client_state VARCHAR(20) NOT NULL DEFAULT 'prospective',
			workflow_status VARCHAR(40) NOT NULL DEFAULT 'referral_submitted',
			matching_attempts INTEGER NOT NULL DEFAULT 0,
			decline_reason TEXT,
			discharge_reason TEXT,
			pre_stage_completed_at TIMESTAMP WITH TIME ZONE,
			stage_started_at TIMESTAMP WITH TIME ZONE,
			documents_received_at TIMESTAMP WITH TIME ZONE,
			insurance_verified_at TIMESTAMP WITH TIME ZONE,
			intake_completed_at TIMESTAMP WITH TIME ZONE,
			assignment_pending_at TIMESTAMP WITH TIME ZONE,
			assignment_completed_at TIMESTAMP WITH TIME ZONE,
			records_exported_at TIMESTAMP WITH TIME ZONE,
			first_session_at TIMESTAMP WITH TIME ZONE,
			pending_completed_at TIMESTAMP WITH TIME ZONE,
			discharged_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createIntakePackagesTable = `
		CREATE TABLE IF NOT EXISTS intake_packages (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			referral_id UUID NOT NULL REFERENCES referrals(id),
			package_type VARCHAR(50) NOT NULL,
			encryption_algorithm VARCHAR(20) NOT NULL DEFAULT 'AES-256-GCM',
			encryption_key_id VARCHAR(100) NOT NULL,
			storage_key VARCHAR(500),
			storage_location VARCHAR(1000),
			download_url TEXT,
			presigned_url_expiry TIMESTAMP WITH TIME ZONE,
			file_size_bytes BIGINT NOT NULL DEFAULT 0,
			checksum_sha256 VARCHAR(64),
			iv BYTEA,
			auth_tag BYTEA,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			error_message TEXT,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			created_by VARCHAR(100)
		);`

	createReferralsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_referrals_workflow_status ON referrals(workflow_status);
		CREATE INDEX IF NOT EXISTS idx_referrals_client_state ON referrals(client_state);
		CREATE INDEX IF NOT EXISTS idx_referrals_updated_at ON referrals(updated_at);`

	createIntakePackagesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_intake_packages_referral_id ON intake_packages(referral_id);
		CREATE INDEX IF NOT EXISTS idx_intake_packages_status ON intake_packages(status);
		CREATE INDEX IF NOT EXISTS idx_intake_packages_expires_at ON intake_packages(expires_at);`
)
