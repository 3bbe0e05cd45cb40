package registry

import "strconv"

// Automation Studio activity type ids as they appear in automation steps.
const (
	ActivityQuery        = 300
	ActivityScript       = 423
	ActivityImport       = 43
	ActivityDataExtract  = 73
	ActivityFileTransfer = 53
	ActivityFilter       = 303
	ActivityFireEvent    = 749
	ActivityJourneyEntry = 952
)

func activityPath(typeID int) string {
	return "steps[].activities[].objectTypeId=" + strconv.Itoa(typeID)
}

func builtinDefinitions() []TypeDefinition {
	return []TypeDefinition{
		{
			Name:             "folder",
			ExtractorName:    "folders",
			KeyField:         "id",
			SharedFromParent: true,
			Description:      "Folder hierarchy for organizing objects",
		},
		{
			Name:             "data_extension",
			ExtractorName:    "data_extensions",
			Dependencies:     []string{"folder"},
			SharedFromParent: true,
			Description:      "Data Extensions for storing tabular data",
		},
		{
			Name:          "query",
			ExtractorName: "queries",
			IDField:       "queryDefinitionId",
			KeyField:      "key",
			Dependencies:  []string{"data_extension", "folder"},
			DependencyPaths: map[string][]string{
				"data_extension": {"targetKey", "targetName", "queryText"},
			},
			Description: "SQL Query Activities for data manipulation",
		},
		{
			Name:          "script",
			ExtractorName: "scripts",
			IDField:       "ssjsActivityId",
			KeyField:      "key",
			Dependencies:  []string{"data_extension", "folder"},
			DependencyPaths: map[string][]string{
				"data_extension": {"script"},
			},
			Description: "SSJS Script Activities",
		},
		{
			Name:          "import",
			ExtractorName: "imports",
			IDField:       "importDefinitionId",
			KeyField:      "key",
			Dependencies:  []string{"data_extension", "folder"},
			DependencyPaths: map[string][]string{
				"data_extension": {"destinationObjectId", "destinationObjectKey"},
			},
			Description: "Import File Activities",
		},
		{
			Name:          "data_extract",
			ExtractorName: "data_extracts",
			IDField:       "dataExtractDefinitionId",
			KeyField:      "key",
			Dependencies:  []string{"data_extension", "folder"},
			DependencyPaths: map[string][]string{
				"data_extension": {"dataExtensionKey", "dataExtensionName"},
			},
			Description: "Data Extract Activities for exporting data",
		},
		{
			Name:          "file_transfer",
			ExtractorName: "file_transfers",
			KeyField:      "key",
			Dependencies:  []string{"folder"},
			Description:   "File Transfer Activities for FTP/SFTP operations",
		},
		{
			Name:          "filter",
			ExtractorName: "filters",
			IDField:       "filterDefinitionId",
			KeyField:      "key",
			Dependencies:  []string{"data_extension", "folder"},
			DependencyPaths: map[string][]string{
				"data_extension": {"sourceDataExtension", "destinationDataExtension"},
			},
			Description: "Filter Activities for data segmentation",
		},
		{
			Name:          "event_definition",
			ExtractorName: "event_definitions",
			KeyField:      "eventDefinitionKey",
			Dependencies:  []string{"data_extension"},
			DependencyPaths: map[string][]string{
				"data_extension": {"dataExtensionId", "dataExtensionName"},
			},
			SharedFromParent:     true,
			SupportsMultiAccount: true,
			Description:          "Journey Entry Event Definitions",
		},
		{
			Name:          "automation",
			ExtractorName: "automations",
			KeyField:      "key",
			Dependencies: []string{
				"query", "script", "import", "data_extract",
				"filter", "file_transfer", "event_definition", "folder",
			},
			DependencyPaths: map[string][]string{
				"query":         {activityPath(ActivityQuery)},
				"script":        {activityPath(ActivityScript)},
				"import":        {activityPath(ActivityImport)},
				"data_extract":  {activityPath(ActivityDataExtract)},
				"file_transfer": {activityPath(ActivityFileTransfer)},
				"filter":        {activityPath(ActivityFilter)},
				"event_definition": {
					activityPath(ActivityFireEvent),
					activityPath(ActivityJourneyEntry),
				},
			},
			SupportsMultiAccount: true,
			Description:          "Automation Studio automations",
		},
		{
			Name:          "journey",
			ExtractorName: "journeys",
			KeyField:      "key",
			Dependencies:  []string{"event_definition", "data_extension", "triggered_send", "folder"},
			DependencyPaths: map[string][]string{
				"event_definition": {"triggers[].metaData.eventDefinitionId"},
				"data_extension": {
					"activities[].configurationArguments.dataExtensionId",
					"activities[].configurationArguments.audienceDataExtensionId",
				},
				"triggered_send": {"activities[].configurationArguments.triggeredSend.triggeredSendId"},
			},
			SupportsMultiAccount: true,
			Description:          "Journey Builder journeys",
		},
		{
			Name:             "classic_email",
			ExtractorName:    "classic_emails",
			Dependencies:     []string{"folder"},
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Classic Emails from Email Studio",
		},
		{
			Name:          "triggered_send",
			ExtractorName: "triggered_sends",
			IDField:       "ObjectID",
			KeyField:      "CustomerKey",
			NameField:     "Name",
			Dependencies: []string{
				"classic_email", "list", "sender_profile", "delivery_profile", "send_classification",
			},
			DependencyPaths: map[string][]string{
				"classic_email":       {"Email.ID"},
				"list":                {"List.ID"},
				"sender_profile":      {"SenderProfile.CustomerKey"},
				"delivery_profile":    {"DeliveryProfile.CustomerKey"},
				"send_classification": {"SendClassification.CustomerKey"},
			},
			SupportsMultiAccount: true,
			APIType:              APISoap,
			Description:          "Triggered Send Definitions",
		},
		{
			Name:             "list",
			ExtractorName:    "lists",
			IDField:          "ID",
			KeyField:         "CustomerKey",
			NameField:        "ListName",
			Dependencies:     []string{"folder"},
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Subscriber Lists",
		},
		{
			Name:             "sender_profile",
			ExtractorName:    "sender_profiles",
			IDField:          "ObjectID",
			KeyField:         "CustomerKey",
			NameField:        "Name",
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Sender Profiles for email sending",
		},
		{
			Name:             "delivery_profile",
			ExtractorName:    "delivery_profiles",
			IDField:          "ObjectID",
			KeyField:         "CustomerKey",
			NameField:        "Name",
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Delivery Profiles for email sending",
		},
		{
			Name:          "send_classification",
			ExtractorName: "send_classifications",
			IDField:       "ObjectID",
			KeyField:      "CustomerKey",
			NameField:     "Name",
			Dependencies:  []string{"sender_profile", "delivery_profile"},
			DependencyPaths: map[string][]string{
				"sender_profile":   {"SenderProfile.CustomerKey"},
				"delivery_profile": {"DeliveryProfile.CustomerKey"},
			},
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Send Classifications for email categorization",
		},
		{
			Name:          "asset",
			ExtractorName: "assets",
			Dependencies:  []string{"folder"},
			DependencyPaths: map[string][]string{
				"asset":          {"content.blocks[].id"},
				"data_extension": {"data.email.legacy.legacyData.dataExtension"},
			},
			SharedFromParent: true,
			Description:      "Content Builder assets (emails, blocks, templates)",
		},
		{
			Name:             "template",
			ExtractorName:    "templates",
			IDField:          "ID",
			KeyField:         "CustomerKey",
			NameField:        "TemplateName",
			Dependencies:     []string{"folder"},
			SharedFromParent: true,
			APIType:          APISoap,
			Description:      "Email Templates",
		},
		{
			Name:          "account",
			ExtractorName: "account",
			IDField:       "ID",
			KeyField:      "CustomerKey",
			NameField:     "Name",
			APIType:       APISoap,
			Description:   "Account/Business Unit information",
		},
	}
}
