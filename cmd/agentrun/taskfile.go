package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// taskFile is the YAML form of a task accepted by run --task-file.
//
//	id: visit-17
//	kind: transcribe
//	subjectRef: patient-42
//	payload:
//	  file: recordings/visit-17.wav
//	  language: cs
type taskFile struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	SubjectRef string `yaml:"subjectRef"`
	Payload    any    `yaml:"payload"`
}

// loadTaskFile reads a task from a YAML (or JSON) file.
func loadTaskFile(path string) (models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Task{}, fmt.Errorf("read task file: %w", err)
	}
	return parseTaskFile(data)
}

func parseTaskFile(data []byte) (models.Task, error) {
	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return models.Task{}, fmt.Errorf("parse task file: %w", err)
	}

	task := models.Task{ID: tf.ID, Kind: tf.Kind, SubjectRef: tf.SubjectRef}
	if tf.Payload != nil {
		payload, err := json.Marshal(tf.Payload)
		if err != nil {
			return models.Task{}, fmt.Errorf("task file payload: %w", err)
		}
		task.Payload = payload
	}
	return task, nil
}

// taskFlags holds the run command's task flags.
type taskFlags struct {
	id       string
	kind     string
	subject  string
	payload  string
	taskFile string
}

// build assembles the task, letting flags override the task file.
func (f taskFlags) build() (models.Task, error) {
	var task models.Task
	if f.taskFile != "" {
		var err error
		if task, err = loadTaskFile(f.taskFile); err != nil {
			return models.Task{}, err
		}
	}

	if f.id != "" {
		task.ID = f.id
	}
	if f.kind != "" {
		task.Kind = f.kind
	}
	if f.subject != "" {
		task.SubjectRef = f.subject
	}
	if f.payload != "" {
		raw := strings.TrimSpace(f.payload)
		if strings.HasPrefix(raw, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
			if err != nil {
				return models.Task{}, fmt.Errorf("read payload: %w", err)
			}
			raw = string(data)
		}
		if !json.Valid([]byte(raw)) {
			return models.Task{}, fmt.Errorf("--payload is not valid JSON")
		}
		task.Payload = json.RawMessage(raw)
	}

	if task.ID == "" {
		return models.Task{}, fmt.Errorf("a task id is required (--id or id: in --task-file)")
	}
	if task.Kind == "" {
		return models.Task{}, fmt.Errorf("a task kind is required (--kind or kind: in --task-file)")
	}
	return task, nil
}
