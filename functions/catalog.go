package functions

import "fmt"

const (
	GenerateCADName = "generate_cad"
	RunWebAgentName = "run_web_agent"
)

// GenerateCAD declares the CAD generation tool.
func GenerateCAD(runner Runner, confirm bool) Definition {
	return Definition{
		Name:        GenerateCADName,
		Description: "Generates a 3D CAD model based on a prompt.",
		Params: []Param{
			{Name: "prompt", Type: ParamString, Description: "The description of the object to generate.", Required: true},
		},
		RequiresConfirmation: confirm,
		Acknowledgement:      "CAD calibration started. The model is being generated in the background. Do not reply to this message.",
		Completion: func(result string, err error) string {
			if err != nil {
				return "System Notification: CAD generation failed."
			}
			return "System Notification: CAD generation is complete. Inform the user that the model is ready."
		},
		Runner: runner,
	}
}

// RunWebAgent declares the browser agent tool.
func RunWebAgent(runner Runner, confirm bool) Definition {
	return Definition{
		Name:        RunWebAgentName,
		Description: "Opens a web browser and performs a task according to the prompt.",
		Params: []Param{
			{Name: "prompt", Type: ParamString, Description: "The detailed instructions for the web browser agent.", Required: true},
		},
		RequiresConfirmation: confirm,
		Acknowledgement:      "Web Navigation started. Do not reply to this message.",
		Completion: func(result string, err error) string {
			if err != nil {
				return fmt.Sprintf("System Notification: Web Agent failed.\nError: %v", err)
			}
			return fmt.Sprintf("System Notification: Web Agent has finished.\nResult: %s", result)
		},
		Runner: runner,
	}
}

// NewCatalog registers the assistant's tools.
func NewCatalog(cad, web Runner, confirm bool) (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(GenerateCAD(cad, confirm)); err != nil {
		return nil, err
	}
	if err := r.Register(RunWebAgent(web, confirm)); err != nil {
		return nil, err
	}
	return r, nil
}
