package collector

import "strings"

// DefaultControllerMarker is the substring that identifies models hosting
// the controller itself.
const DefaultControllerMarker = "controller"

// Partition is one namespace to collect. Model is empty for the partition
// hosting the controller, which only gets cluster-level collection.
type Partition struct {
	Namespace  string `json:"namespace"`
	Model      string `json:"model,omitempty"`
	Controller string `json:"controller"`
}

// IsController reports whether the partition hosts the controller.
func (p Partition) IsController() bool {
	return p.Model == ""
}

// ControllerNamespace returns the namespace juju deploys a controller into.
func ControllerNamespace(controller string) string {
	return "controller-" + controller
}

// Partitions maps discovered model names to partitions. The controller
// partition always comes first. Models whose name contains marker are
// skipped, as are repeated names.
func Partitions(controller string, models []string, marker string) []Partition {
	parts := []Partition{{Namespace: ControllerNamespace(controller), Controller: controller}}
	seen := map[string]bool{parts[0].Namespace: true}

	for _, model := range models {
		if marker != "" && strings.Contains(model, marker) {
			continue
		}
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		parts = append(parts, Partition{Namespace: model, Model: model, Controller: controller})
	}
	return parts
}
