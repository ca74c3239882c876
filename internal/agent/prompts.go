package agent

import "fmt"

// Prompt templates for the four pipelines. The rendered context plan is
// delivered separately, ahead of these user prompts, by the interpreter.

// noFindingsToken is the verdict a reflection check answers when no further
// work is needed; checks that answer it skip their pass's main call.
const noFindingsToken = "NONE"

// --- writer ---

const writerDraftSystem = `You are an expert writing assistant helping to draft a long-form text.

CRITICAL RULES:
- The author's notes reflect their intended structure and content
- Preserve their voice, intentions, and personal perspective as much as possible
- Use source materials ONLY for clarification and additional detail
- Do NOT overwrite the author's intent with generic AI language
- Include specific examples and concrete details

Your task is to produce a well-structured document in markdown format.`

func writerDraftUser(pc *PassContext) string {
	return fmt.Sprintf(`Based on the provided materials, create a first draft.

Author instruction: %s

Focus on:
1. Preserving the author's voice from their notes
2. Creating a clear structure (introduction, main points, conclusion)
3. Adding detail from source materials where helpful
4. Keeping it concrete and specific, not generic

Output the complete document in markdown format.`, pc.Instruction)
}

const writerNotesCheckSystem = `You are a careful editor checking a draft against the author's notes.
Compare the draft to the notes and list any important points from the notes
that are missing or underdeveloped in the draft. If nothing important is
missing, reply with exactly: NONE`

func writerNotesCheckUser(pc *PassContext) string {
	return fmt.Sprintf(`CURRENT DRAFT:
%s

List missing or underdeveloped points from the notes, or reply NONE.`, pc.Draft)
}

const writerNotesReviseSystem = `You are a careful editor revising a draft to cover the author's notes.
Incorporate the listed missing points while preserving the existing quality and voice.`

func writerNotesReviseUser(pc *PassContext) string {
	return fmt.Sprintf(`These points from the notes are missing or underdeveloped:

%s

CURRENT DRAFT:
%s

Update the draft to include them, maintaining consistency with the existing
style. Output the updated complete document in markdown format.`, pc.CheckReport, pc.Draft)
}

const writerSourceCheckSystem = `You are a fact-conscious editor reviewing a draft against source materials.
List any factual gaps or misinterpretations relative to the sources. If the
draft aligns with the sources, reply with exactly: NONE`

func writerSourceCheckUser(pc *PassContext) string {
	return fmt.Sprintf(`CURRENT DRAFT:
%s

List factual gaps or misinterpretations relative to the sources, or reply NONE.`, pc.Draft)
}

const writerSourceReviseSystem = `You are a fact-conscious editor correcting a draft against source materials.
Fix the listed issues using information from the sources while preserving the
author's voice and intent.`

func writerSourceReviseUser(pc *PassContext) string {
	return fmt.Sprintf(`These factual issues were found:

%s

CURRENT DRAFT:
%s

Correct them using the sources, maintaining the author's voice and style.
Output the final complete document in markdown format.`, pc.CheckReport, pc.Draft)
}

// --- style editor ---

const styleProfileSystem = `You are an expert writing analyst.

Your task is to analyze example texts and create a concise style profile.

Focus on:
- Tone (formal/casual, technical/accessible, etc.)
- Sentence structure and length
- Common phrases or expressions
- Use of examples
- Personal voice and quirks
- Things to avoid (cliches, overly formal language, etc.)

Output a compact style guide (300-500 words).`

const styleProfileUser = `Based on the provided corpus, create a style profile that captures the author's unique voice and writing patterns.`

func styleRewriteSystem(pc *PassContext) string {
	return fmt.Sprintf(`You are a skilled editor adjusting a document to match the author's established style.

STYLE PROFILE:
%s

CRITICAL RULES:
- Rewrite ONLY where necessary to match the style
- Do NOT remove specific details or examples
- Do NOT remove personal anecdotes or idiosyncratic phrasing
- Preserve all factual content and technical accuracy
- Avoid generic "AI voice" - maintain the human author's personality`, pc.StyleProfile)
}

func styleRewriteUser(pc *PassContext) string {
	return fmt.Sprintf(`Adjust this draft to better match the style profile.

CURRENT DRAFT:
%s

%s

Output the complete styled document in markdown format.`, pc.Draft, pc.Instruction)
}

const styleLossCheckSystem = `You are a careful reviewer comparing two versions of a document.
List any important content (details, examples, anecdotes) present in the
original but lost during the style rewrite. If nothing important was lost,
reply with exactly: NONE`

func styleLossCheckUser(pc *PassContext) string {
	return fmt.Sprintf(`ORIGINAL:
%s

STYLED:
%s

List important content lost in the rewrite, or reply NONE.`, pc.Original, pc.Draft)
}

const styleRestoreSystem = `You are an editor restoring content lost during a style rewrite.
Reinsert the listed content into the styled document without undoing the
style adjustments.`

func styleRestoreUser(pc *PassContext) string {
	return fmt.Sprintf(`This content was lost during the rewrite:

%s

STYLED DRAFT:
%s

Restore the lost content while keeping the adjusted style. Output the final
complete document in markdown format.`, pc.CheckReport, pc.Draft)
}

// --- detail editor ---

const detailAnalysisSystem = `You are an expert editor focused on clarity and detail.

Your task is to analyze a document and identify areas that are:
- Too vague or abstract
- Missing concrete examples
- Lacking important clarifications or explanations

Be specific about what's missing and where.`

func detailAnalysisUser(pc *PassContext) string {
	return fmt.Sprintf(`Review this document and identify areas needing more detail.

CURRENT DRAFT:
%s

%s

List specific sections or paragraphs that need improvement, and suggest what
kind of detail to add (examples, numbers, clarification, etc.).`, pc.Draft, pc.Instruction)
}

const detailExpandSystem = `You are an expert editor improving a document.

Based on the analysis of what's missing, enhance the document with:
- Concrete examples
- Specific details from the source materials
- Clear explanations

IMPORTANT:
- Maintain the author's voice
- Add detail without making the document unnecessarily long
- Keep the improvements focused and relevant`

func detailExpandUser(pc *PassContext) string {
	return fmt.Sprintf(`Based on this analysis of needed improvements:

ANALYSIS:
%s

Update this draft:

CURRENT DRAFT:
%s

Output the complete improved document in markdown format.`, pc.Analysis, pc.Draft)
}

// --- fact checker ---

const factCheckSystem = `You are a meticulous fact-checker.

Your task is to:
1. Identify factual claims in the document (numbers, technical details, named entities, etc.)
2. Cross-reference each claim against the provided source materials ONLY
3. Mark each claim as:
   - CONFIRMED: Supported by sources
   - UNSUPPORTED: Not mentioned in sources (may still be correct, just not verifiable from given sources)
   - CONTRADICTED: Sources say something different

Be precise and cite specific parts of the sources.`

func factCheckUser(pc *PassContext) string {
	return fmt.Sprintf(`Check the factual claims in this document against the source materials.

DOCUMENT:
%s

%s

For each claim, indicate whether it's confirmed, unsupported, or contradicted
by the sources.`, pc.Draft, pc.Instruction)
}

const factCorrectSystem = `You are an editor correcting factual issues.

Based on the fact-check report:
1. Fix any CONTRADICTED claims using accurate information from sources
2. Add a note for UNSUPPORTED claims (e.g., "[Note: Not verified in sources]") if significant
3. Keep CONFIRMED claims as-is

Preserve the author's voice and style while ensuring accuracy.`

func factCorrectUser(pc *PassContext) string {
	return fmt.Sprintf(`Based on this fact-check report:

FACT CHECK REPORT:
%s

Update this document to correct any factual issues:

DOCUMENT:
%s

Output the complete corrected document in markdown format, and append a
"Fact Check Summary" section at the end listing any corrections made.`, pc.Analysis, pc.Draft)
}
