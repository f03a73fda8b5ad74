package novasqlwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/internal/wire"
	"github.com/tuannm99/novaquery/sqlrequest"
)

// Error codes carried in ErrorInfo.Code.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeDecode         = "DECODE_ERROR"
	CodeCursorNotFound = "CURSOR_NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

// ExecuteRequest is a single envelope tagged with a request ID.
//
// Payload: [version u8][id u64][envelope]
type ExecuteRequest struct {
	ID      uint64
	Request *sqlrequest.Request
}

// ExecuteResponse is the response for a request ID. Exactly one of Page
// and Error is set.
//
// Payload: [version u8][id u64][has error bool][ErrorInfo | Page]
type ExecuteResponse struct {
	ID    uint64
	Page  *dispatch.Page
	Error *ErrorInfo
}

type ErrorInfo struct {
	Code     string
	Message  string
	Failures []string
}

// ErrorInfoFrom maps a handler or decode error to its wire form.
func ErrorInfoFrom(err error) *ErrorInfo {
	var ve *sqlrequest.ValidationError
	switch {
	case errors.As(err, &ve):
		return &ErrorInfo{Code: CodeValidation, Message: err.Error(), Failures: ve.Failures}
	case sqlrequest.IsDecode(err), errors.Is(err, ErrUnsupportedVersion), errors.Is(err, wire.ErrTruncated):
		return &ErrorInfo{Code: CodeDecode, Message: err.Error()}
	case errors.Is(err, dispatch.ErrCursorNotFound):
		return &ErrorInfo{Code: CodeCursorNotFound, Message: err.Error()}
	default:
		return &ErrorInfo{Code: CodeInternal, Message: err.Error()}
	}
}

func readVersion(in *wire.Input) error {
	v, err := in.ReadByte()
	if err != nil {
		return err
	}
	if v != ProtocolVersion {
		return fmt.Errorf("%w: got %d want %d", ErrUnsupportedVersion, v, ProtocolVersion)
	}
	return nil
}

func EncodeRequest(req *ExecuteRequest) ([]byte, error) {
	var buf bytes.Buffer
	out := wire.NewOutput(&buf)

	if err := out.WriteByte(ProtocolVersion); err != nil {
		return nil, err
	}
	if err := out.WriteUint64(req.ID); err != nil {
		return nil, err
	}
	if err := req.Request.Serialize(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRequest decodes one request payload. When the envelope itself is
// malformed the returned request is non-nil and carries the ID, so the
// caller can still address its error response.
func DecodeRequest(payload []byte) (*ExecuteRequest, error) {
	in := wire.NewInput(bytes.NewReader(payload))

	if err := readVersion(in); err != nil {
		return nil, err
	}
	id, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	req, err := sqlrequest.Deserialize(in)
	if err != nil {
		return &ExecuteRequest{ID: id}, err
	}
	return &ExecuteRequest{ID: id, Request: req}, nil
}

func EncodeResponse(resp *ExecuteResponse) ([]byte, error) {
	var buf bytes.Buffer
	out := wire.NewOutput(&buf)

	if err := out.WriteByte(ProtocolVersion); err != nil {
		return nil, err
	}
	if err := out.WriteUint64(resp.ID); err != nil {
		return nil, err
	}
	if err := out.WriteBool(resp.Error != nil); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if err := out.WriteString(resp.Error.Code); err != nil {
			return nil, err
		}
		if err := out.WriteString(resp.Error.Message); err != nil {
			return nil, err
		}
		if err := out.WriteStringSlice(resp.Error.Failures); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	page := resp.Page
	if page == nil {
		page = &dispatch.Page{}
	}
	if err := out.WriteStringSlice(page.Columns); err != nil {
		return nil, err
	}
	if err := out.WriteUvarint(uint64(len(page.Rows))); err != nil {
		return nil, err
	}
	for _, row := range page.Rows {
		if err := out.WriteStringSlice(row); err != nil {
			return nil, err
		}
	}
	var cursor *string
	if page.Cursor != "" {
		cursor = &page.Cursor
	}
	if err := out.WriteOptionalString(cursor); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeResponse(payload []byte) (*ExecuteResponse, error) {
	in := wire.NewInput(bytes.NewReader(payload))

	if err := readVersion(in); err != nil {
		return nil, err
	}
	id, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	hasErr, err := in.ReadBool()
	if err != nil {
		return nil, err
	}
	resp := &ExecuteResponse{ID: id}

	if hasErr {
		info := &ErrorInfo{}
		if info.Code, err = in.ReadString(); err != nil {
			return nil, err
		}
		if info.Message, err = in.ReadString(); err != nil {
			return nil, err
		}
		if info.Failures, err = in.ReadStringSlice(); err != nil {
			return nil, err
		}
		resp.Error = info
		return resp, nil
	}

	page := &dispatch.Page{}
	if page.Columns, err = in.ReadStringSlice(); err != nil {
		return nil, err
	}
	n, err := in.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(payload)) {
		return nil, fmt.Errorf("novasqlwire: row count %d exceeds payload", n)
	}
	page.Rows = make([][]string, 0, n)
	for i := uint64(0); i < n; i++ {
		row, err := in.ReadStringSlice()
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, row)
	}
	cursor, err := in.ReadOptionalString()
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		page.Cursor = *cursor
	}
	resp.Page = page
	return resp, nil
}

func WriteRequest(w io.Writer, req *ExecuteRequest) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

func WriteResponse(w io.Writer, resp *ExecuteResponse) error {
	payload, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
