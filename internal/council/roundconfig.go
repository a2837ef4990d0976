package council

import "fmt"

// BuildRoundConfig resolves a round type into its execution config. Single
// point of dispatch so the parallel and streaming executors never branch on
// round type themselves.
//
// Initial rounds answer the raw query with tool access. Critique rounds see
// the current baseline answers and get no tools. Defense rounds see the
// critiques aimed at them, get tools back, and must produce a revised
// answer.
func BuildRoundConfig(roundType RoundType, query string, rc RoundContext) (RoundConfig, error) {
	switch roundType {
	case RoundInitial:
		queryWithDate := dateContext() + query
		return RoundConfig{
			Type:      RoundInitial,
			UsesTools: true,
			BuildPrompt: func(string) string {
				return queryWithDate
			},
		}, nil

	case RoundCritique:
		responsesText := formatResponsesForCritique(rc.InitialResponses)
		return RoundConfig{
			Type: RoundCritique,
			BuildPrompt: func(model string) string {
				return buildCritiquePrompt(query, responsesText, model)
			},
		}, nil

	case RoundDefense:
		originals := make(map[string]string, len(rc.InitialResponses))
		for _, r := range rc.InitialResponses {
			originals[r.Model] = r.Response
		}
		return RoundConfig{
			Type:             RoundDefense,
			UsesTools:        true,
			HasRevisedAnswer: true,
			BuildPrompt: func(model string) string {
				critiques := ExtractCritiquesFor(model, rc.CritiqueResponses)
				return buildDefensePrompt(query, originals[model], critiques)
			},
		}, nil
	}

	return RoundConfig{}, fmt.Errorf("unknown round type: %s", roundType)
}
