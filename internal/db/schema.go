// Package db defines the GORM schema for the persistence core and the
// dialect-aware connection helper used to open it.
package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONAny is a custom GORM scalar type storing a map[string]any as JSON
// text, used for resource.spec, resource.metadata, and event payloads.
type JSONAny map[string]any

func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, m)
}

func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONStringSlice is a custom GORM scalar type storing a []string as JSON
// text, used for an artifact's accepted-status filter.
type JSONStringSlice []string

func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, s)
}

func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported type for JSON scalar column: %T", value)
	}
}

// ArtifactRecord is the artifact table row.
type ArtifactRecord struct {
	Name              string          `gorm:"column:name;primaryKey"`
	Type              string          `gorm:"column:type;primaryKey"`
	StatusFilter      JSONStringSlice `gorm:"column:status_filter;type:text"`
	IsDocker          bool            `gorm:"column:is_docker;not null"`
	DockerKind        string          `gorm:"column:docker_kind"`
	DockerCustomRegex string          `gorm:"column:docker_custom_regex"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (ArtifactRecord) TableName() string { return "artifact" }

// ArtifactVersionRecord is the artifact_version table row.
type ArtifactVersionRecord struct {
	ArtifactName string    `gorm:"column:artifact_name;primaryKey"`
	ArtifactType string    `gorm:"column:artifact_type;primaryKey"`
	Version      string    `gorm:"column:version;primaryKey"`
	Status       string    `gorm:"column:status;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ArtifactVersionRecord) TableName() string { return "artifact_version" }

// DeliveryConfigRecord is the delivery_config table row.
type DeliveryConfigRecord struct {
	Name        string    `gorm:"column:name;primaryKey;type:varchar(255)"`
	Application string    `gorm:"column:application;index;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryConfigRecord) TableName() string { return "delivery_config" }

// EnvironmentRecord is the environment table row, scoped to its config.
type EnvironmentRecord struct {
	ConfigName  string          `gorm:"column:config_name;primaryKey"`
	Name        string          `gorm:"column:name;primaryKey"`
	Constraints JSONStringSlice `gorm:"column:constraints;type:text"`
	ResourceIDs JSONStringSlice `gorm:"column:resource_ids;type:text"`
}

func (EnvironmentRecord) TableName() string { return "environment" }

// EnvironmentArtifactRecord is the environment_artifact join table row
// recording that an artifact is bound into a config (independent of any
// particular environment promotion row).
type EnvironmentArtifactRecord struct {
	ConfigName   string `gorm:"column:config_name;primaryKey"`
	ArtifactName string `gorm:"column:artifact_name;primaryKey"`
	ArtifactType string `gorm:"column:artifact_type;primaryKey"`
}

func (EnvironmentArtifactRecord) TableName() string { return "environment_artifact" }

// PromotionRecord is the environment_artifact_version_promotion table row.
type PromotionRecord struct {
	ConfigName             string     `gorm:"column:config_name;primaryKey"`
	ArtifactName           string     `gorm:"column:artifact_name;primaryKey"`
	ArtifactType           string     `gorm:"column:artifact_type;primaryKey"`
	EnvName                string     `gorm:"column:env_name;primaryKey"`
	Version                string     `gorm:"column:version;primaryKey"`
	ApprovedAt             time.Time  `gorm:"column:approved_at;not null"`
	DeployingAt            *time.Time `gorm:"column:deploying_at"`
	DeployedSuccessfullyAt *time.Time `gorm:"column:deployed_successfully_at"`
}

func (PromotionRecord) TableName() string { return "environment_artifact_version_promotion" }

// ConstraintStateRecord is the constraint_state table row.
type ConstraintStateRecord struct {
	ConfigName string     `gorm:"column:config_name;primaryKey"`
	EnvName    string     `gorm:"column:env_name;primaryKey"`
	Version    string     `gorm:"column:version;primaryKey"`
	Type       string     `gorm:"column:type;primaryKey"`
	Status     string     `gorm:"column:status;not null"`
	JudgedBy   string     `gorm:"column:judged_by"`
	JudgedAt   *time.Time `gorm:"column:judged_at"`
	Comment    string     `gorm:"column:comment"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ConstraintStateRecord) TableName() string { return "constraint_state" }

// ResourceRecord is the resource table row.
type ResourceRecord struct {
	UID         string    `gorm:"column:uid;primaryKey;type:varchar(26)"`
	ID          string    `gorm:"column:id;uniqueIndex;not null"`
	APIVersion  string    `gorm:"column:api_version;not null"`
	Kind        string    `gorm:"column:kind;not null"`
	Application string    `gorm:"column:application;index;not null"`
	Metadata    JSONAny   `gorm:"column:metadata;type:text"`
	Spec        JSONAny   `gorm:"column:spec;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ResourceRecord) TableName() string { return "resource" }

// ResourceEventRecord is the resource_event table row. ID is a
// caller-generated uuid, matching every teacher store's
// uuid.New().String() primary-key convention rather than relying on an
// autoincrement column that a dialect-specific sequence would have to
// back.
type ResourceEventRecord struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	ResourceUID string    `gorm:"column:resource_uid;index:idx_event_resource_time,priority:1;not null"`
	Timestamp   time.Time `gorm:"column:timestamp;index:idx_event_resource_time,priority:2;not null"`
	Kind        string    `gorm:"column:kind;not null"`
	Payload     JSONAny   `gorm:"column:payload;type:text"`
}

func (ResourceEventRecord) TableName() string { return "resource_event" }

// ResourceLastCheckedRecord is the resource_last_checked join table row.
type ResourceLastCheckedRecord struct {
	ResourceUID   string    `gorm:"column:resource_uid;primaryKey"`
	LastCheckedAt time.Time `gorm:"column:last_checked_at;index;not null"`
}

func (ResourceLastCheckedRecord) TableName() string { return "resource_last_checked" }

// DeliveryConfigLastCheckedRecord is the delivery_config_last_checked join
// table row.
type DeliveryConfigLastCheckedRecord struct {
	ConfigName    string    `gorm:"column:config_name;primaryKey"`
	LastCheckedAt time.Time `gorm:"column:last_checked_at;index;not null"`
}

func (DeliveryConfigLastCheckedRecord) TableName() string { return "delivery_config_last_checked" }

// AllTables lists every schema struct for AutoMigrate.
func AllTables() []any {
	return []any{
		&ArtifactRecord{},
		&ArtifactVersionRecord{},
		&DeliveryConfigRecord{},
		&EnvironmentRecord{},
		&EnvironmentArtifactRecord{},
		&PromotionRecord{},
		&ConstraintStateRecord{},
		&ResourceRecord{},
		&ResourceEventRecord{},
		&ResourceLastCheckedRecord{},
		&DeliveryConfigLastCheckedRecord{},
	}
}
