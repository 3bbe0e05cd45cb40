package inventory

// RelationshipType names the kind of dependency an Edge records.
type RelationshipType string

// Automation activities.
const (
	AutomationContainsQuery          RelationshipType = "automation_contains_query"
	AutomationContainsScript         RelationshipType = "automation_contains_script"
	AutomationContainsImport         RelationshipType = "automation_contains_import"
	AutomationContainsExtract        RelationshipType = "automation_contains_extract"
	AutomationContainsTransfer       RelationshipType = "automation_contains_transfer"
	AutomationContainsEmail          RelationshipType = "automation_contains_email"
	AutomationContainsFilter         RelationshipType = "automation_contains_filter"
	AutomationContainsFireEvent      RelationshipType = "automation_contains_fire_event"
	AutomationContainsSMS            RelationshipType = "automation_contains_sms"
	AutomationContainsVerification   RelationshipType = "automation_contains_verification"
	AutomationContainsWait           RelationshipType = "automation_contains_wait"
	AutomationContainsRefreshGroup   RelationshipType = "automation_contains_refresh_group"
	AutomationContainsJourneyEntry   RelationshipType = "automation_contains_journey_entry"
	AutomationContainsSalesforceSend RelationshipType = "automation_contains_salesforce_send"
	AutomationContainsPush           RelationshipType = "automation_contains_push"
)

// Data movement.
const (
	QueryReadsDE      RelationshipType = "query_reads_de"
	QueryWritesDE     RelationshipType = "query_writes_de"
	ImportWritesDE    RelationshipType = "import_writes_de"
	ImportReadsFile   RelationshipType = "import_reads_file"
	ExtractReadsDE    RelationshipType = "extract_reads_de"
	ExtractWritesFile RelationshipType = "extract_writes_file"
	FilterReadsDE     RelationshipType = "filter_reads_de"
	FilterWritesDE    RelationshipType = "filter_writes_de"
	ScriptUsesDE      RelationshipType = "script_uses_de"
	CloudPageWritesDE RelationshipType = "cloudpage_writes_de"
	CloudPageReadsDE  RelationshipType = "cloudpage_reads_de"
)

// Journeys.
const (
	JourneyUsesDE                 RelationshipType = "journey_uses_de"
	JourneyUsesEmail              RelationshipType = "journey_uses_email"
	JourneyUsesFilter             RelationshipType = "journey_uses_filter"
	JourneyUsesAutomation         RelationshipType = "journey_uses_automation"
	JourneyUsesEvent              RelationshipType = "journey_uses_event"
	JourneyUsesSenderProfile      RelationshipType = "journey_uses_sender_profile"
	JourneyUsesDeliveryProfile    RelationshipType = "journey_uses_delivery_profile"
	JourneyUsesSendClassification RelationshipType = "journey_uses_send_classification"
	JourneyUsesSMS                RelationshipType = "journey_uses_sms"
)

// Content and sending.
const (
	EmailUsesDE                           RelationshipType = "email_uses_de"
	EmailUsesContentBlock                 RelationshipType = "email_uses_content_block"
	ContentBlockUsesDE                    RelationshipType = "content_block_uses_de"
	AssetUsesContentBlock                 RelationshipType = "asset_uses_content_block"
	TriggeredSendUsesEmail                RelationshipType = "triggered_send_uses_email"
	TriggeredSendUsesList                 RelationshipType = "triggered_send_uses_list"
	TriggeredSendUsesSenderProfile        RelationshipType = "triggered_send_uses_sender_profile"
	TriggeredSendUsesDeliveryProfile      RelationshipType = "triggered_send_uses_delivery_profile"
	TriggeredSendUsesSendClassification   RelationshipType = "triggered_send_uses_send_classification"
	SendClassificationUsesSenderProfile   RelationshipType = "send_classification_uses_sender_profile"
	SendClassificationUsesDeliveryProfile RelationshipType = "send_classification_uses_delivery_profile"
	EventDefinitionUsesDE                 RelationshipType = "event_definition_uses_de"
	FolderContainsFolder                  RelationshipType = "folder_contains_folder"
)

// Generic.
const (
	References RelationshipType = "references"
	Contains   RelationshipType = "contains"
	DependsOn  RelationshipType = "depends_on"
)

// Edge metadata keys.
const (
	MetaSourceAccountID = "_sourceBuMid"
	MetaIsShared        = "isShared"
	MetaFromParentBU    = "fromParentBU"
	MetaAccountID       = "sourceAccountId"
	MetaResolvedByName  = "resolved_by_name"
)

// Edge records that Source depends on Target.
type Edge struct {
	SourceID   string           `json:"source_id"`
	SourceType string           `json:"source_type"`
	SourceName string           `json:"source_name,omitempty"`
	TargetID   string           `json:"target_id"`
	TargetType string           `json:"target_type"`
	TargetName string           `json:"target_name,omitempty"`
	Type       RelationshipType `json:"relationship_type"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// MetaBool reads a boolean metadata flag.
func (e Edge) MetaBool(key string) bool {
	b, _ := e.Metadata[key].(bool)
	return b
}

// WithMeta returns a copy of the edge with key set in a fresh metadata map.
func (e Edge) WithMeta(key string, value any) Edge {
	md := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// Orphan is an object no qualifying source type references.
type Orphan struct {
	ID           string `json:"id"`
	ObjectType   string `json:"object_type"`
	Name         string `json:"name"`
	FolderPath   string `json:"folder_path,omitempty"`
	Reason       string `json:"reason"`
	LastModified string `json:"last_modified,omitempty"`
}
