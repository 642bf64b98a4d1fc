// Package controller wires C2 through C8 together behind the method
// surface of spec §4.7: a leader controller and a client controller, each
// dispatching decoded RPCs into the relevant component.
package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/camerasync/internal/syncerr"
)

// Reserved method IDs (spec §4.7; CAPTURE_ACK is the expansion in §4.7's
// [EXPANSION] row). Values are stable within this protocol's lifetime,
// not meaningful outside it.
const (
	MethodHeartbeat int32 = iota + 1
	MethodHeartbeatAck
	MethodSNTPReq
	MethodSNTPResp
	MethodOffsetUpdate
	MethodSetTriggerTime
	MethodSet2A
	MethodDoPhaseAlign
	MethodCaptureAck
)

func joinCSV(fields ...string) []byte {
	return []byte(strings.Join(fields, ","))
}

func splitCSV(payload []byte, wantFields int) ([]string, error) {
	if len(payload) == 0 {
		if wantFields == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: empty payload, want %d fields", syncerr.ErrProtocol, wantFields)
	}
	fields := strings.Split(string(payload), ",")
	if len(fields) != wantFields {
		return nil, fmt.Errorf("%w: got %d fields, want %d", syncerr.ErrProtocol, len(fields), wantFields)
	}
	return fields, nil
}

// HeartbeatPayload is HEARTBEAT{client_id, synced}.
type HeartbeatPayload struct {
	ClientID string
	Synced   bool
}

func EncodeHeartbeat(p HeartbeatPayload) []byte {
	return joinCSV(p.ClientID, strconv.FormatBool(p.Synced))
}

func DecodeHeartbeat(payload []byte) (HeartbeatPayload, error) {
	fields, err := splitCSV(payload, 2)
	if err != nil {
		return HeartbeatPayload{}, err
	}
	synced, err := strconv.ParseBool(fields[1])
	if err != nil {
		return HeartbeatPayload{}, fmt.Errorf("%w: bad synced flag: %v", syncerr.ErrProtocol, err)
	}
	return HeartbeatPayload{ClientID: fields[0], Synced: synced}, nil
}

// SNTPReqPayload is SNTP_REQ{t0}.
type SNTPReqPayload struct {
	T0 int64
}

func EncodeSNTPReq(p SNTPReqPayload) []byte {
	return joinCSV(strconv.FormatInt(p.T0, 10))
}

func DecodeSNTPReq(payload []byte) (SNTPReqPayload, error) {
	fields, err := splitCSV(payload, 1)
	if err != nil {
		return SNTPReqPayload{}, err
	}
	t0, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return SNTPReqPayload{}, fmt.Errorf("%w: bad t0: %v", syncerr.ErrProtocol, err)
	}
	return SNTPReqPayload{T0: t0}, nil
}

// SNTPRespPayload is SNTP_RESP{t0,t1,t2}.
type SNTPRespPayload struct {
	T0, T1, T2 int64
}

func EncodeSNTPResp(p SNTPRespPayload) []byte {
	return joinCSV(
		strconv.FormatInt(p.T0, 10),
		strconv.FormatInt(p.T1, 10),
		strconv.FormatInt(p.T2, 10),
	)
}

func DecodeSNTPResp(payload []byte) (SNTPRespPayload, error) {
	fields, err := splitCSV(payload, 3)
	if err != nil {
		return SNTPRespPayload{}, err
	}
	t0, err1 := strconv.ParseInt(fields[0], 10, 64)
	t1, err2 := strconv.ParseInt(fields[1], 10, 64)
	t2, err3 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return SNTPRespPayload{}, fmt.Errorf("%w: bad timestamp field", syncerr.ErrProtocol)
	}
	return SNTPRespPayload{T0: t0, T1: t1, T2: t2}, nil
}

// OffsetUpdatePayload is OFFSET_UPDATE{offset_ns, error_bound_ns}.
type OffsetUpdatePayload struct {
	OffsetNs     int64
	ErrorBoundNs uint64
}

func EncodeOffsetUpdate(p OffsetUpdatePayload) []byte {
	return joinCSV(
		strconv.FormatInt(p.OffsetNs, 10),
		strconv.FormatUint(p.ErrorBoundNs, 10),
	)
}

func DecodeOffsetUpdate(payload []byte) (OffsetUpdatePayload, error) {
	fields, err := splitCSV(payload, 2)
	if err != nil {
		return OffsetUpdatePayload{}, err
	}
	offset, err1 := strconv.ParseInt(fields[0], 10, 64)
	bound, err2 := strconv.ParseUint(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return OffsetUpdatePayload{}, fmt.Errorf("%w: bad offset fields", syncerr.ErrProtocol)
	}
	return OffsetUpdatePayload{OffsetNs: offset, ErrorBoundNs: bound}, nil
}

// SetTriggerTimePayload is SET_TRIGGER_TIME{t_trigger_leader_ns}.
type SetTriggerTimePayload struct {
	TTriggerLeaderNs int64
}

func EncodeSetTriggerTime(p SetTriggerTimePayload) []byte {
	return joinCSV(strconv.FormatInt(p.TTriggerLeaderNs, 10))
}

func DecodeSetTriggerTime(payload []byte) (SetTriggerTimePayload, error) {
	fields, err := splitCSV(payload, 1)
	if err != nil {
		return SetTriggerTimePayload{}, err
	}
	t, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return SetTriggerTimePayload{}, fmt.Errorf("%w: bad trigger time: %v", syncerr.ErrProtocol, err)
	}
	return SetTriggerTimePayload{TTriggerLeaderNs: t}, nil
}

// Set2APayload is SET_2A{exposure_ns, sensitivity}.
type Set2APayload struct {
	ExposureNs  int64
	Sensitivity int32
}

func EncodeSet2A(p Set2APayload) []byte {
	return joinCSV(
		strconv.FormatInt(p.ExposureNs, 10),
		strconv.FormatInt(int64(p.Sensitivity), 10),
	)
}

func DecodeSet2A(payload []byte) (Set2APayload, error) {
	fields, err := splitCSV(payload, 2)
	if err != nil {
		return Set2APayload{}, err
	}
	exposure, err1 := strconv.ParseInt(fields[0], 10, 64)
	sensitivity, err2 := strconv.ParseInt(fields[1], 10, 32)
	if err1 != nil || err2 != nil {
		return Set2APayload{}, fmt.Errorf("%w: bad 2A fields", syncerr.ErrProtocol)
	}
	return Set2APayload{ExposureNs: exposure, Sensitivity: int32(sensitivity)}, nil
}

// CaptureAckPayload is CAPTURE_ACK{user_tag, leader_ts, dropped}
// ([EXPANSION] §4.7).
type CaptureAckPayload struct {
	UserTag  string
	LeaderTS int64
	Dropped  []int
}

// The dropped field is itself comma-separated (spec §4.7), so unlike the
// other payloads this one splits on the first two commas only, leaving
// the remainder untouched.
func EncodeCaptureAck(p CaptureAckPayload) []byte {
	dropped := make([]string, len(p.Dropped))
	for i, d := range p.Dropped {
		dropped[i] = strconv.Itoa(d)
	}
	return joinCSV(p.UserTag, strconv.FormatInt(p.LeaderTS, 10), strings.Join(dropped, ","))
}

func DecodeCaptureAck(payload []byte) (CaptureAckPayload, error) {
	fields := strings.SplitN(string(payload), ",", 3)
	if len(fields) != 3 {
		return CaptureAckPayload{}, fmt.Errorf("%w: capture ack needs 3 fields, got %d", syncerr.ErrProtocol, len(fields))
	}
	leaderTS, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return CaptureAckPayload{}, fmt.Errorf("%w: bad leader_ts: %v", syncerr.ErrProtocol, err)
	}
	var dropped []int
	if fields[2] != "" {
		for _, s := range strings.Split(fields[2], ",") {
			d, err := strconv.Atoi(s)
			if err != nil {
				return CaptureAckPayload{}, fmt.Errorf("%w: bad dropped index %q: %v", syncerr.ErrProtocol, s, err)
			}
			dropped = append(dropped, d)
		}
	}
	return CaptureAckPayload{UserTag: fields[0], LeaderTS: leaderTS, Dropped: dropped}, nil
}
