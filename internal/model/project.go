package model

import "time"

// Project is a named save slot holding a full set of files.
type Project struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learnerId"`
	Name      string    `json:"name"`
	Files     *FileSet  `json:"files"`
	Libraries []string  `json:"libraries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectExportVersion is written into every exported project file.
const ProjectExportVersion = "1.0.0"

// ProjectExport is the downloadable project file format.
type ProjectExport struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Created string   `json:"created"`
	Files   *FileSet `json:"files"`
	// Libraries is optional; files written by older versions omit it.
	Libraries []string `json:"libraries,omitempty"`
}
