package pipeline

import "fmt"

// System prompts for each model call. Every prompt that produces JSON asks
// for the exact key names the backlog package decodes.
const (
	promptCleanDocument = `You improve requirement documents before analysis.
Correct grammar and spelling, drop stray characters and meaningless filler, and
tidy the formatting. Keep every statement of what the system does. Do not add,
remove or reinterpret requirements. Return only the improved document.`

	// promptSummarize is kept for callers that want a functional summary
	// instead of a cleaned document.
	promptSummarize = `You are a software project manager. From the input document,
extract the text that describes the application to be built, focusing on its
functional requirements. Return only that text.`

	promptExtractRequirements = `You extract functional requirements from source text.

Rules:
1. Extract only requirements the source states explicitly.
2. Never infer requirements from best practice or from similar systems
   (authentication, search, user profiles and so on) unless the source names them.
3. Never invent numbers: no percentages, durations, counts or thresholds that are
   not written in the source.
4. Back every requirement with an exact quote from the source.
5. Cover contextual capabilities as well as bullet points: data collection and
   processing, communication, storage, failure handling, power management,
   reconfiguration and self-contained operation.

For each requirement give a short statement (5 to 10 words), the supporting quote
and a confidence of high, medium or low.

Output format:
{"requirements": [{"id": 1, "statement": "brief requirement", "source_quote": "exact text from source", "confidence": "high"}]}

Return only valid JSON with no markdown and no commentary.`

	promptRefineRequirements = `You are a senior project manager consolidating functional requirements.

1. Merge redundant or overlapping requirements into single statements.
2. Remove duplicates and near duplicates.
3. Group related requirements by capability.
4. Make each requirement clear, specific and actionable.
5. Aim for a focused list of roughly 10 to 20 requirements.

Keep the numbered list format, one requirement per line, and return only the list.`

	promptExtractEpics = `You turn requirements into user stories with deliverables.

System boundary: the source may describe several systems. Only write stories for
what one instance of the primary target system does. Skip requirements about
aggregating from, monitoring or archiving for many instances.

Rules:
1. Only use functionality the source states explicitly. Never add features it does
   not mention.
2. Never invent metrics. No percentages, seconds, minutes, hours, counts or time
   windows unless they appear in the source. Prefer qualitative wording such as
   "reliably" or "successfully".
3. Every story carries source_basis: an exact quote from the source that justifies it.
4. Write exactly one story per requirement. N requirements give N stories.

Story format: "The system must [ACTION] so that [BUSINESS VALUE]". The benefit must
be a real outcome grounded in the source, not a restatement of the action.

Deliverables use unique descriptive names. Each definition_of_done is concrete and
references details from the source.

Output format:
{"Epics": [{"User Story": "The system must ... so that ...", "source_basis": "exact quote", "Deliverables": {"Unique_Deliverable_Name": {"definition_of_done": "criteria from the source"}}}]}

Before answering, check that the story count matches the requirement count and
that the JSON is valid. Return only valid JSON with no markdown and no commentary.`

	promptRefineEpic = `You add a definition of done to every deliverable of one user story.

For each deliverable, state what done means: specific, testable completion
criteria focused on quality and completeness. Do not invent numeric targets the
story does not contain.

Output format, keyed by deliverable name:
{"deliverable_name": {"definition_of_done": "what done means for this deliverable"}}

Return only valid JSON with no markdown and no commentary.`

	promptGenerateTestCases = `You write concrete test cases for functional requirements.

Rules:
1. Test only behaviour the requirements state. Never invent metrics.
2. Write at least 2 scenarios per requirement, including edge cases the source
   mentions such as communication loss, hardware faults, environmental limits and
   failover.
3. Every scenario has a descriptive name, a concrete input object and a concrete
   expected_output object with realistic values and types.
4. Never use template text such as "Verify that the system must ..." or
   "Functionality works as specified". Never use vague outputs like "data" or "success".
5. Produce one test case group per requirement. N requirements give N groups.

Output format:
{"testCases": [{"requirement_id": 1, "scenarios": [{"name": "specific scenario", "input": {"field": "value"}, "expected_output": {"field": "value"}}]}]}

Return only valid JSON with no markdown and no commentary.`

	promptVoteRefinement = `You are a voter. Of two input texts, vote for the one that is more accurate,
concise and easy to understand. Answer only with your vote: first or second.`

	promptVoteDetail = `You are a software developer. Of two software requirement lists, vote for
the one that is more detailed and specific. Answer only with your vote: first or second.`

	promptSameRequirements = `You compare two software requirement lists and decide whether they
describe the same requirements. Reason step by step, then answer with the keyword
yes if they are the same or no if they are not.`
)

func renderPair(first, second string) string {
	return fmt.Sprintf("The first:\n%s\n\nThe second:\n%s\n\nWhich one do you vote for?", first, second)
}

func renderSameness(first, second string) string {
	return fmt.Sprintf("The first list:\n%s\n\nThe second list:\n%s\n\nAre they describing the same requirements?", first, second)
}
