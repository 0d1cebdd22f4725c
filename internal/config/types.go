package config

const (
	ProtocolILP  = "ilp"
	ProtocolCopy = "copy"

	FlavorQuestDB  = "questdb"
	FlavorPostgres = "postgres"

	CheckpointFile   = "file"
	CheckpointSQLite = "sqlite"
)

// DefaultPattern matches Databento TBBO captures, e.g.
// xnas-itch-20240102.tbbo.dbn.zst.
const DefaultPattern = "*.tbbo.dbn.zst"

// MaxInFlight caps pipeline.in_flight; each in-flight batch may hold up to
// batch.max_bytes.
const MaxInFlight = 8

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}
