// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol implements the framed binary packet protocol that two
// nekoshare devices speak over a mutually-authenticated TLS stream: an
// 8-bit packet type tag, a 5-byte header, and a little-endian binary codec
// for payloads.
package protocol

import "fmt"

// PacketType is an 8-bit tag identifying the kind of packet carried by a
// Frame. The byte space is partitioned into fixed ranges by concern; see
// the Is* predicates below.
type PacketType uint8

const (
	// 0x00-0x0F: system & connection.
	SystemHandshake    PacketType = 0x00
	SystemHeartbeat    PacketType = 0x01
	SystemKick         PacketType = 0x02
	SystemVersion      PacketType = 0x03
	SystemCapabilities PacketType = 0x04

	// 0x10-0x1F: authentication.
	AuthLoginRequest  PacketType = 0x10
	AuthLoginResponse PacketType = 0x11
	AuthTokenRefresh  PacketType = 0x12
	AuthTokenRevoke   PacketType = 0x13
	AuthLogout        PacketType = 0x14

	// 0x20-0x2F: user & state.
	UserGetProfile    PacketType = 0x20
	UserUpdateProfile PacketType = 0x21
	UserUpdateDevice  PacketType = 0x22
	UserStatusChange  PacketType = 0x23

	// 0x30-0x3F: peer discovery & signaling.
	PeerListRequest        PacketType = 0x30
	PeerConnectRequest     PacketType = 0x31
	PeerConnectResponse    PacketType = 0x32
	PeerSocketReady        PacketType = 0x33
	PeerConnectionInfo     PacketType = 0x34
	PeerIncomingRequest    PacketType = 0x35
	PeerSignalingData      PacketType = 0x36
	PeerConnectionConfirm  PacketType = 0x37
	PeerDisconnect         PacketType = 0x38
	PeerDisconnected       PacketType = 0x39
	Ack                    PacketType = 0x3A

	// 0x40-0x4F: file transfer, control plane.
	FileOffer   PacketType = 0x40
	FileAccept  PacketType = 0x41
	FileReject  PacketType = 0x42
	FilePause   PacketType = 0x43
	FileResume  PacketType = 0x44
	FileAck     PacketType = 0x45
	FileFinish  PacketType = 0x46

	// 0x50-0x5F: file transfer, data plane.
	FileChunk PacketType = 0x50

	// 0x60-0x6F: clipboard & text.
	TextMessage   PacketType = 0x60
	ClipboardCopy PacketType = 0x61

	// 0x80-0x8F: reserved for a future relay/tunnel transport. No tunnel
	// transport is implemented; see Non-goals. Kept as an inert range so a
	// future relay packet type doesn't collide with anything below.

	// 0x90-0x9F: device management.
	DeviceRename  PacketType = 0x90
	DeviceDelete  PacketType = 0x91
	DeviceUpdated PacketType = 0x92
	DeviceRemoved PacketType = 0x93
	DeviceAdded   PacketType = 0x94

	// 0xE0-0xEF: debug & metrics.
	DebugLog         PacketType = 0xE0
	DebugPerformance PacketType = 0xE1

	// 0xF0-0xFF: error & termination.
	ErrorGeneric    PacketType = 0xF0
	ErrorPermission PacketType = 0xF1
	ErrorNotFound   PacketType = 0xF2
	ErrorServerFull PacketType = 0xF3

	// Unknown is the sentinel returned for any byte not covered above.
	Unknown PacketType = 0xFF
)

var packetTypeNames = map[PacketType]string{
	SystemHandshake:    "SystemHandshake",
	SystemHeartbeat:    "SystemHeartbeat",
	SystemKick:         "SystemKick",
	SystemVersion:      "SystemVersion",
	SystemCapabilities: "SystemCapabilities",

	AuthLoginRequest:  "AuthLoginRequest",
	AuthLoginResponse: "AuthLoginResponse",
	AuthTokenRefresh:  "AuthTokenRefresh",
	AuthTokenRevoke:   "AuthTokenRevoke",
	AuthLogout:        "AuthLogout",

	UserGetProfile:    "UserGetProfile",
	UserUpdateProfile: "UserUpdateProfile",
	UserUpdateDevice:  "UserUpdateDevice",
	UserStatusChange:  "UserStatusChange",

	PeerListRequest:       "PeerListRequest",
	PeerConnectRequest:    "PeerConnectRequest",
	PeerConnectResponse:   "PeerConnectResponse",
	PeerSocketReady:       "PeerSocketReady",
	PeerConnectionInfo:    "PeerConnectionInfo",
	PeerIncomingRequest:   "PeerIncomingRequest",
	PeerSignalingData:     "PeerSignalingData",
	PeerConnectionConfirm: "PeerConnectionConfirm",
	PeerDisconnect:        "PeerDisconnect",
	PeerDisconnected:      "PeerDisconnected",
	Ack:                   "Ack",

	FileOffer:  "FileOffer",
	FileAccept: "FileAccept",
	FileReject: "FileReject",
	FilePause:  "FilePause",
	FileResume: "FileResume",
	FileAck:    "FileAck",
	FileFinish: "FileFinish",

	FileChunk: "FileChunk",

	TextMessage:   "TextMessage",
	ClipboardCopy: "ClipboardCopy",

	DeviceRename:  "DeviceRename",
	DeviceDelete:  "DeviceDelete",
	DeviceUpdated: "DeviceUpdated",
	DeviceRemoved: "DeviceRemoved",
	DeviceAdded:   "DeviceAdded",

	DebugLog:         "DebugLog",
	DebugPerformance: "DebugPerformance",

	ErrorGeneric:    "ErrorGeneric",
	ErrorPermission: "ErrorPermission",
	ErrorNotFound:   "ErrorNotFound",
	ErrorServerFull: "ErrorServerFull",

	Unknown: "Unknown",
}

// ParsePacketType maps a wire byte to a PacketType, returning Unknown for
// any byte not in packetTypeNames.
func ParsePacketType(b byte) PacketType {
	pt := PacketType(b)
	if _, ok := packetTypeNames[pt]; ok {
		return pt
	}
	return Unknown
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PacketType(0x%02X)", uint8(t))
}

func (t PacketType) IsSystem() bool  { return t <= 0x0F }
func (t PacketType) IsAuth() bool    { return t >= 0x10 && t <= 0x1F }
func (t PacketType) IsUser() bool    { return t >= 0x20 && t <= 0x2F }
func (t PacketType) IsPeer() bool    { return t >= 0x30 && t <= 0x3F }
func (t PacketType) IsFile() bool    { return (t >= 0x40 && t <= 0x4F) || (t >= 0x50 && t <= 0x5F) }
func (t PacketType) IsData() bool    { return t >= 0x50 && t <= 0x5F }
func (t PacketType) IsTunnel() bool  { return t >= 0x80 && t <= 0x8F }
func (t PacketType) IsDevice() bool  { return t >= 0x90 && t <= 0x9F }
func (t PacketType) IsDebug() bool   { return t >= 0xE0 && t <= 0xEF }
func (t PacketType) IsError() bool   { return t >= 0xF0 }
