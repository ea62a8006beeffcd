package protocol

// FailureResponse carries a server-side error, passed through to the
// caller largely unchanged: code/domain/message identify the error class,
// stackTrace is optional diagnostic detail.
type FailureResponse struct {
	Code       string
	Domain     string
	Message    string
	StackTrace string
}

// DecodeFailure decodes a ResponseFailure frame. Call sites are expected to
// check the response discriminant for ResponseFailure before calling this.
func DecodeFailure(response *Message) FailureResponse {
	response.Rewind()
	return FailureResponse{
		Code:       response.getString(),
		Domain:     response.getString(),
		Message:    response.getString(),
		StackTrace: response.getString(),
	}
}

type ConnectionOpenResponse struct {
	ConnectionID         [16]byte
	ServerDurationMillis uint64
	DatabasesByName      map[string]bool
}

func DecodeConnectionOpen(response *Message) (ConnectionOpenResponse, error) {
	response.Rewind()
	var out ConnectionOpenResponse
	id := response.getBlob()
	if len(id) != 16 {
		return out, MissingResponseField("connection_open.connection_id")
	}
	copy(out.ConnectionID[:], id)
	out.ServerDurationMillis = response.getUint64()
	n := response.getUint32()
	out.DatabasesByName = make(map[string]bool, n)
	for i := uint32(0); i < n; i++ {
		out.DatabasesByName[response.getString()] = true
	}
	return out, nil
}

type ServersAllResponse struct {
	Replicas []ReplicaInfo
}

func DecodeServersAll(response *Message) (ServersAllResponse, error) {
	response.Rewind()
	n := response.getUint32()
	replicas := make([]ReplicaInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		host := response.getString()
		port := response.getUint16()
		role := NodeRole(response.getUint8())
		term := response.getUint64()
		db := response.getString()
		replicas = append(replicas, ReplicaInfo{
			Address:  Address{Host: host, Port: port},
			Role:     role,
			Term:     term,
			Database: db,
		})
	}
	return ServersAllResponse{Replicas: replicas}, nil
}

type DatabasesAllResponse struct {
	Names []string
}

func DecodeDatabasesAll(response *Message) DatabasesAllResponse {
	response.Rewind()
	n := response.getUint32()
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		names = append(names, response.getString())
	}
	return DatabasesAllResponse{Names: names}
}

type DatabaseResponse struct {
	Name string
}

func DecodeDatabase(response *Message) DatabaseResponse {
	response.Rewind()
	return DatabaseResponse{Name: response.getString()}
}

func DecodeOk(response *Message) {
	response.Rewind()
}

type SchemaResponse struct {
	Text string
}

func DecodeSchema(response *Message) SchemaResponse {
	response.Rewind()
	return SchemaResponse{Text: response.getString()}
}

type ExportStreamPartResponse struct {
	Done  bool
	Chunk []byte
}

func DecodeExportStreamPart(response *Message) ExportStreamPartResponse {
	response.Rewind()
	done := response.getUint8() != 0
	if done {
		return ExportStreamPartResponse{Done: true}
	}
	return ExportStreamPartResponse{Chunk: response.getBlob()}
}

type UsersAllResponse struct {
	Usernames []string
}

func DecodeUsersAll(response *Message) UsersAllResponse {
	response.Rewind()
	n := response.getUint32()
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		names = append(names, response.getString())
	}
	return UsersAllResponse{Usernames: names}
}

type UserResponse struct {
	Username string
}

func DecodeUser(response *Message) UserResponse {
	response.Rewind()
	return UserResponse{Username: response.getString()}
}

// TransactionNoticeResponse carries a setup notification emitted on a
// transaction-open stream ahead of the final open response.
type TransactionNoticeResponse struct {
	Message string
}

func DecodeTransactionNotice(response *Message) TransactionNoticeResponse {
	response.Rewind()
	return TransactionNoticeResponse{Message: response.getString()}
}

type ServerVersionResponse struct {
	Version string
}

func DecodeServerVersion(response *Message) ServerVersionResponse {
	response.Rewind()
	return ServerVersionResponse{Version: response.getString()}
}

type TransactionOpenResponse struct {
	ServerDurationMillis uint64
}

func DecodeTransactionOpen(response *Message) TransactionOpenResponse {
	response.Rewind()
	return TransactionOpenResponse{ServerDurationMillis: response.getUint64()}
}

// Row is one row of a query stream part: a positional list of values,
// nil entries standing for SQL/TypeQL-style absent (not-null-violating)
// columns are not possible here -- a missing value is encoded as KindNull.
type Row []*Value

type QueryStreamPart struct {
	State      uint8 // StreamStateInitial | StreamStateRows | StreamStateDone | StreamStateError
	Columns    []string
	Rows       []Row
	Failure    *FailureResponse
}

func DecodeQueryStreamPart(response *Message) (QueryStreamPart, error) {
	response.Rewind()
	part := QueryStreamPart{State: response.getUint8()}

	switch part.State {
	case StreamStateDone:
		return part, nil
	case StreamStateError:
		f := FailureResponse{
			Code:       response.getString(),
			Domain:     response.getString(),
			Message:    response.getString(),
			StackTrace: response.getString(),
		}
		part.Failure = &f
		return part, nil
	case StreamStateInitial:
		nCols := response.getUint32()
		part.Columns = make([]string, 0, nCols)
		for i := uint32(0); i < nCols; i++ {
			part.Columns = append(part.Columns, response.getString())
		}
		return part, nil
	case StreamStateRows:
		nRows := response.getUint32()
		part.Rows = make([]Row, 0, nRows)
		for i := uint32(0); i < nRows; i++ {
			nVals := response.getUint32()
			row := make(Row, 0, nVals)
			for j := uint32(0); j < nVals; j++ {
				v, err := response.getValue()
				if err != nil {
					return part, err
				}
				row = append(row, v)
			}
			part.Rows = append(part.Rows, row)
		}
		return part, nil
	default:
		return part, MissingResponseField("transaction.stream_res.state")
	}
}
