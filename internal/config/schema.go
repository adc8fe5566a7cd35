package config

// fileSchema is the JSON Schema an optional -config file is validated
// against before being decoded (spec §4.10 ADD), in the teacher's
// config.Validate(schema, raw) style (internal/config/validate.go).
const fileSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"queue": {"type": "integer", "minimum": 0},
		"freq": {"type": "integer", "minimum": 1},
		"vcd_fifo": {"type": "boolean"},
		"msc_untimed": {"type": "boolean"},
		"vcd_untimed": {"type": "boolean"},
		"msc_page_max_levels": {"type": "integer", "minimum": 1},
		"msc_level_height": {"type": "integer", "minimum": 1},
		"msc_box_height": {"type": "integer", "minimum": 1},
		"msc_inst_dist": {"type": "integer", "minimum": 1},
		"msc_mark_grain": {"type": "integer", "minimum": 0, "maximum": 2},
		"msc_mark_disp": {"type": "integer", "minimum": 0, "maximum": 3}
	}
}`
