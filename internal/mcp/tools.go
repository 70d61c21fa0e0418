package mcp

import "github.com/mark3labs/mcp-go/mcp"

var imagingRunToolDef = mcp.NewTool("imaging_run",
	mcp.WithDescription("Reconcile stored noun images with noun records: keep referenced files, "+
		"rename and link repairable files to matching nouns, delete unclaimed files, and clear "+
		"references to missing images. Returns the full run report."),
	mcp.WithString("namespace",
		mcp.Description("Storage prefix holding noun images (default from config)"),
	),
)

var nounListToolDef = mcp.NewTool("noun_list",
	mcp.WithDescription("List noun records, oldest first."),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of records to skip"),
	),
)

var nounFindToolDef = mcp.NewTool("noun_find",
	mcp.WithDescription("Find noun records by English name (case-insensitive exact match). "+
		"More than one result means the name is duplicated."),
	mcp.WithString("name_en",
		mcp.Required(),
		mcp.Description("English noun name"),
	),
)

var nounSetImageToolDef = mcp.NewTool("noun_set_image",
	mcp.WithDescription("Set or clear the image URL of a noun record."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Noun ID"),
	),
	mcp.WithString("image_url",
		mcp.Description("Absolute image URL; omit or leave empty to clear"),
	),
)

var nounImportToolDef = mcp.NewTool("noun_import",
	mcp.WithDescription("Create noun records. Entries whose English name already exists are skipped."),
	mcp.WithArray("items",
		mcp.Required(),
		mcp.Description("Array of {nameEn, nameHe, category?, categoryHe?, imageUrl?}"),
	),
)
