package classifier

import "fmt"

const (
	judgeSystem    = "You are an expert AI evaluator for Web3 and CKB-related topics."
	detectSystem   = "You are an expert in identifying payment invoices and wallet addresses."
	generateSystem = "Strictly adhere to the provided knowledge when generating questions and answers."
)

func invoiceJudgePrompt(r Rubric, answer string) string {
	return fmt.Sprintf(`Score the user answer against the reference answer from 0 to 100 for relevance, accuracy and clarity.
Extract a payment invoice (for example "fibt400000...") if present, else null.
Write a friendly reply of 10 to 20 words; if the invoice is missing ask for one. Do not mention the score.

Context: %s
Question: %s
Reference Answer: %s
User Answer: %s

Respond with one JSON object only:
{"score": int, "invoice": str or null, "reply_content": str}`, r.Context, r.Prompt, r.ReferenceAnswer, answer)
}

func addressJudgePrompt(r Rubric, answer string) string {
	return fmt.Sprintf(`Score the user answer against the reference answer from 0 to 100 for relevance, accuracy and clarity.
Extract the wallet address the user wants to be paid to, else null.
Propose a reward amount and currency ("CKB" or "SEAL") only when an address is present.
Write a friendly reply of 10 to 20 words.

Context: %s
Question: %s
Reference Answer: %s
User Answer: %s

Respond with one JSON object only:
{"score": int, "to_address": str or null, "amount": int or null, "currency_type": str or null, "reply_content": str}`, r.Context, r.Prompt, r.ReferenceAnswer, answer)
}

func detectPrompt(answer string) string {
	return fmt.Sprintf(`Decide whether the user response contains a payment invoice or wallet address.
If one is present confirm receipt politely, otherwise politely ask the user to provide one.

User Answer: %s

Respond with one JSON object only:
{"is_invoice": bool, "invoice": str or null, "reply_content": str}`, answer)
}

const generatePrompt = `Generate one quiz question about the CKB ecosystem with a short background context and a reference answer.
Suggest a reward amount in CKB.

Respond with one JSON object only:
{"question_context": str, "question_prompt": str, "reference_answer": str, "amount": int}`
