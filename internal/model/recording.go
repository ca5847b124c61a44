// Package model contains simple struct definitions shared across packages.
package model

import (
	"errors"
	"time"
)

// Tab selects which view the page renders.
type Tab string

const (
	TabArchive Tab = "archive"
	TabInfo    Tab = "info"
)

// ErrUnknownTab is returned by ParseTab for anything other than the known tabs.
var ErrUnknownTab = errors.New("unknown tab")

// ParseTab converts a form value into a Tab.
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case TabArchive:
		return TabArchive, nil
	case TabInfo:
		return TabInfo, nil
	}
	return "", ErrUnknownTab
}

// Payload is the raw audio a user selected. Data is owned by the store once saved.
type Payload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Recording is one uploaded entry as shown in the archive grid. ID doubles as the
// list key and the media reference.
type Recording struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// State is a read-only snapshot of an upload session. Version increases on every
// mutation so renderers can tell whether they are stale.
type State struct {
	Version       uint64      `json:"version"`
	ActiveTab     Tab         `json:"activeTab"`
	IsUploading   bool        `json:"isUploading"`
	JustSucceeded bool        `json:"justSucceeded"`
	Recordings    []Recording `json:"recordings"`
}
