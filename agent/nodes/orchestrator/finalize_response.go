package orchestratornode

// FinalizeResponse shapes the graph output for the API layer.
func FinalizeResponse(state *GraphState) (GraphOutput, error) {
	return GraphOutput{
		Response:       state.Result.Response,
		CategoriesUsed: categoryStrings(state.Result.CategoriesUsed),
		Steps:          state.Trace.Steps(),
		StudentName:    state.Result.StudentName,
		UpdatesApplied: state.Result.UpdatesApplied,
	}, nil
}
