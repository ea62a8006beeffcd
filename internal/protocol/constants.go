package protocol

// SchemaVersionOne is the current wire schema version.
const SchemaVersionOne = uint8(1)

// Wire type codes for scalar values, used both for standalone value frames
// and for the field-list encoding inside struct values and query parameter
// maps. Named WireXxx to avoid colliding with the Go types of the same
// concept (Decimal, Date, Duration, Struct) declared in value.go/types.go.
const (
	WireNull       = 0
	WireBoolean    = 1
	WireLong       = 2
	WireDouble     = 3
	WireDecimal    = 4
	WireString     = 5
	WireDate       = 6
	WireDateTime   = 7
	WireDateTimeTZ = 8
	WireDuration   = 9
	WireStruct     = 10
)

// Replica roles. Unknown marks a replica reported by a standalone server
// that has never run a primary election -- single-node mode.
const (
	Primary   = NodeRole(0)
	Secondary = NodeRole(1)
	Unknown   = NodeRole(2)
)

// Request discriminants (client -> server).
const (
	RequestConnectionOpen = 0

	RequestServersAll        = 1
	RequestServersRegister   = 2
	RequestServersDeregister = 3

	RequestDatabasesAll      = 10
	RequestDatabaseGet       = 11
	RequestDatabaseCreate    = 12
	RequestDatabaseDelete    = 13
	RequestDatabaseSchema    = 14
	RequestDatabaseTypeSchema = 15
	RequestDatabaseExport    = 16
	RequestDatabaseImport    = 17

	RequestUsersAll            = 20
	RequestUserGet             = 21
	RequestUserCreate          = 22
	RequestUserUpdatePassword  = 23
	RequestUserDelete          = 24

	RequestTransactionOpen           = 30
	RequestTransactionCommit         = 31
	RequestTransactionRollback       = 32
	RequestTransactionClose          = 33
	RequestTransactionQuery          = 34
	RequestTransactionStreamContinue = 35

	RequestInterrupt = 40

	RequestServerVersion = 41
)

// Response discriminants (server -> client).
const (
	ResponseFailure = 0

	ResponseConnectionOpen = 1

	ResponseServers = 2

	ResponseDatabases = 10
	ResponseDatabase  = 11
	ResponseOk        = 12
	ResponseSchema    = 13
	ResponseExportStreamPart = 14

	ResponseUsers = 20
	ResponseUser  = 21

	// ResponseTransactionNotice carries a setup notification emitted on a
	// transaction-open stream before its final ResponseTransactionOpen --
	// e.g. a schema-lock wait -- and is not itself a reply to be awaited.
	ResponseTransactionNotice = 29

	ResponseTransactionOpen = 30
	// ResponseQueryStreamPart carries one part of a streamed query
	// response: the state field distinguishes Initial / Done / Error
	// from an ordinary row/value batch.
	ResponseQueryStreamPart = 31

	ResponseEmpty = 90

	ResponseServerVersion = 91
)

// Stream part states, carried inside a ResponseQueryStreamPart frame.
const (
	StreamStateInitial = 0
	StreamStateRows    = 1
	StreamStateDone    = 2
	StreamStateError   = 3
)

func requestDesc(code uint8) string {
	switch code {
	case RequestConnectionOpen:
		return "connection-open"
	case RequestServersAll:
		return "servers-all"
	case RequestServersRegister:
		return "servers-register"
	case RequestServersDeregister:
		return "servers-deregister"
	case RequestDatabasesAll:
		return "databases-all"
	case RequestDatabaseGet:
		return "database-get"
	case RequestDatabaseCreate:
		return "database-create"
	case RequestDatabaseDelete:
		return "database-delete"
	case RequestDatabaseSchema:
		return "database-schema"
	case RequestDatabaseTypeSchema:
		return "database-type-schema"
	case RequestDatabaseExport:
		return "database-export"
	case RequestDatabaseImport:
		return "database-import"
	case RequestUsersAll:
		return "users-all"
	case RequestUserGet:
		return "user-get"
	case RequestUserCreate:
		return "user-create"
	case RequestUserUpdatePassword:
		return "user-update-password"
	case RequestUserDelete:
		return "user-delete"
	case RequestTransactionOpen:
		return "transaction-open"
	case RequestTransactionCommit:
		return "transaction-commit"
	case RequestTransactionRollback:
		return "transaction-rollback"
	case RequestTransactionClose:
		return "transaction-close"
	case RequestTransactionQuery:
		return "transaction-query"
	case RequestTransactionStreamContinue:
		return "transaction-stream-continue"
	case RequestInterrupt:
		return "interrupt"
	case RequestServerVersion:
		return "server-version"
	}
	return "unknown"
}

func responseDesc(code uint8) string {
	switch code {
	case ResponseFailure:
		return "failure"
	case ResponseConnectionOpen:
		return "connection-open"
	case ResponseServers:
		return "servers"
	case ResponseDatabases:
		return "databases"
	case ResponseDatabase:
		return "database"
	case ResponseOk:
		return "ok"
	case ResponseSchema:
		return "schema"
	case ResponseExportStreamPart:
		return "export-stream-part"
	case ResponseUsers:
		return "users"
	case ResponseUser:
		return "user"
	case ResponseTransactionNotice:
		return "transaction-notice"
	case ResponseTransactionOpen:
		return "transaction-open"
	case ResponseQueryStreamPart:
		return "query-stream-part"
	case ResponseEmpty:
		return "empty"
	case ResponseServerVersion:
		return "server-version"
	}
	return "unknown"
}
