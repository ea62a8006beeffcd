package protocol

// EncodeConnectionOpen encodes the handshake request a driver sends right
// after dialing: it carries the credentials and the schema version the
// driver speaks.
func EncodeConnectionOpen(request *Message, username, password string) {
	request.reset()
	request.putString(username)
	request.putString(password)

	request.putHeader(RequestConnectionOpen, SchemaVersionOne)
}

// EncodeServersAll encodes a request for the list of known server replicas.
func EncodeServersAll(request *Message) {
	request.reset()
	request.putHeader(RequestServersAll, SchemaVersionOne)
}

// EncodeServersRegister encodes a request to add address to the cluster
// topology, answered with the refreshed replica list.
func EncodeServersRegister(request *Message, address Address) {
	request.reset()
	request.putString(address.Host)
	request.putUint16(address.Port)
	request.putHeader(RequestServersRegister, SchemaVersionOne)
}

// EncodeServersDeregister encodes a request to remove address from the
// cluster topology, answered with the refreshed replica list.
func EncodeServersDeregister(request *Message, address Address) {
	request.reset()
	request.putString(address.Host)
	request.putUint16(address.Port)
	request.putHeader(RequestServersDeregister, SchemaVersionOne)
}

func EncodeDatabasesAll(request *Message) {
	request.reset()
	request.putHeader(RequestDatabasesAll, SchemaVersionOne)
}

func EncodeDatabaseGet(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseGet, SchemaVersionOne)
}

func EncodeDatabaseCreate(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseCreate, SchemaVersionOne)
}

func EncodeDatabaseDelete(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseDelete, SchemaVersionOne)
}

func EncodeDatabaseSchema(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseSchema, SchemaVersionOne)
}

func EncodeDatabaseTypeSchema(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseTypeSchema, SchemaVersionOne)
}

func EncodeDatabaseExport(request *Message, name string) {
	request.reset()
	request.putString(name)
	request.putHeader(RequestDatabaseExport, SchemaVersionOne)
}

func EncodeDatabaseImport(request *Message, name string, schema string) {
	request.reset()
	request.putString(name)
	request.putString(schema)
	request.putHeader(RequestDatabaseImport, SchemaVersionOne)
}

func EncodeUsersAll(request *Message) {
	request.reset()
	request.putHeader(RequestUsersAll, SchemaVersionOne)
}

func EncodeUserGet(request *Message, username string) {
	request.reset()
	request.putString(username)
	request.putHeader(RequestUserGet, SchemaVersionOne)
}

func EncodeUserCreate(request *Message, username, password string) {
	request.reset()
	request.putString(username)
	request.putString(password)
	request.putHeader(RequestUserCreate, SchemaVersionOne)
}

func EncodeUserUpdatePassword(request *Message, username, password string) {
	request.reset()
	request.putString(username)
	request.putString(password)
	request.putHeader(RequestUserUpdatePassword, SchemaVersionOne)
}

func EncodeUserDelete(request *Message, username string) {
	request.reset()
	request.putString(username)
	request.putHeader(RequestUserDelete, SchemaVersionOne)
}

// EncodeTransactionOpen encodes the first frame of a transaction stream:
// the database name, the transaction type ordinal (Read/Write/Schema), the
// driver's current network-latency estimate and the two pass-through
// timeouts. No consistency level is encoded; the replica is chosen
// client-side before the stream is opened.
func EncodeTransactionOpen(request *Message, database string, txType uint8, networkLatencyMillis uint64, transactionTimeoutMillis uint64, schemaLockTimeoutMillis uint64) {
	request.reset()
	request.putString(database)
	request.putUint8(txType)
	request.putUint64(networkLatencyMillis)
	request.putUint64(transactionTimeoutMillis)
	request.putUint64(schemaLockTimeoutMillis)
	request.putHeader(RequestTransactionOpen, SchemaVersionOne)
}

func EncodeTransactionCommit(request *Message) {
	request.reset()
	request.putHeader(RequestTransactionCommit, SchemaVersionOne)
}

func EncodeTransactionRollback(request *Message) {
	request.reset()
	request.putHeader(RequestTransactionRollback, SchemaVersionOne)
}

func EncodeTransactionClose(request *Message) {
	request.reset()
	request.putHeader(RequestTransactionClose, SchemaVersionOne)
}

func EncodeTransactionQuery(request *Message, query string, params map[string]*Value) {
	request.reset()
	request.putString(query)
	request.putFieldMap(params)
	request.putHeader(RequestTransactionQuery, SchemaVersionOne)
}

// EncodeTransactionStreamContinue encodes the client-pull continuation
// signal: exactly one of these must be sent per Continue state received.
func EncodeTransactionStreamContinue(request *Message) {
	request.reset()
	request.putHeader(RequestTransactionStreamContinue, SchemaVersionOne)
}

func EncodeInterrupt(request *Message) {
	request.reset()
	request.putHeader(RequestInterrupt, SchemaVersionOne)
}

// EncodeServerVersion encodes a request for the contacted server's version
// string.
func EncodeServerVersion(request *Message) {
	request.reset()
	request.putHeader(RequestServerVersion, SchemaVersionOne)
}
