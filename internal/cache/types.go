package cache

import "sort"

// Type names one cacheable data set: a folder hierarchy or a set of object
// definitions.
type Type string

const (
	// Folders retrieved over SOAP.
	AutomationFolders    Type = "automation_folders"
	EmailFolders         Type = "email_folders"
	TemplateFolders      Type = "template_folders"
	TriggeredSendFolders Type = "triggered_send_folders"
	ListFolders          Type = "list_folders"
	JourneyFolders       Type = "journey_folders"

	// Folders retrieved over REST.
	DEFolders           Type = "de_folders"
	QueryFolders        Type = "query_folders"
	ScriptFolders       Type = "script_folders"
	ImportFolders       Type = "import_folders"
	DataExtractFolders  Type = "dataextract_folders"
	FileTransferFolders Type = "filetransfer_folders"
	FilterFolders       Type = "filter_folders"

	ContentCategories Type = "content_categories"

	// Definitions.
	Queries        Type = "queries"
	Scripts        Type = "scripts"
	Emails         Type = "emails"
	TriggeredSends Type = "triggered_sends"
)

// AllTypes returns every cache type in declaration order.
func AllTypes() []Type {
	return []Type{
		AutomationFolders, EmailFolders, TemplateFolders, TriggeredSendFolders, ListFolders, JourneyFolders,
		DEFolders, QueryFolders, ScriptFolders, ImportFolders, DataExtractFolders, FileTransferFolders, FilterFolders,
		ContentCategories,
		Queries, Scripts, Emails, TriggeredSends,
	}
}

// FolderContentTypes maps a folder content type to the cache holding it.
var FolderContentTypes = map[string]Type{
	"automations":          AutomationFolders,
	"dataextension":        DEFolders,
	"queryactivity":        QueryFolders,
	"ssjsactivity":         ScriptFolders,
	"importactivity":       ImportFolders,
	"dataextractactivity":  DataExtractFolders,
	"filetransferactivity": FileTransferFolders,
	"filteractivity":       FilterFolders,
	"email":                EmailFolders,
	"template":             TemplateFolders,
	"triggered_send":       TriggeredSendFolders,
	"list":                 ListFolders,
	"journey":              JourneyFolders,
	"asset":                ContentCategories,
}

// objectTypeCaches lists the caches an extractor of each object type reads
// while it runs.
var objectTypeCaches = map[string][]Type{
	"automation":     {AutomationFolders},
	"data_extension": {DEFolders},
	"query":          {QueryFolders},
	"script":         {ScriptFolders},
	"import":         {ImportFolders},
	"data_extract":   {DataExtractFolders},
	"file_transfer":  {FileTransferFolders},
	"filter":         {FilterFolders},
	"journey":        {JourneyFolders},
	"classic_email":  {EmailFolders},
	"triggered_send": {TriggeredSendFolders, Emails},
	"list":           {ListFolders},
	"asset":          {ContentCategories},
	"template":       {TemplateFolders},
}

// TypesForObjectTypes returns the distinct caches needed by the given object
// types, sorted.
func TypesForObjectTypes(objectTypes []string) []Type {
	seen := make(map[Type]bool)
	for _, ot := range objectTypes {
		for _, t := range objectTypeCaches[ot] {
			seen[t] = true
		}
	}
	out := make([]Type, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
