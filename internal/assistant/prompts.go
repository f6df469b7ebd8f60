package assistant

import (
	"fmt"
	"strings"
)

// answerPrompt builds the grounded question-answering prompt from the
// retrieved sources.
func answerPrompt(question string, verses []VerseHit, commentary []CommentaryHit) string {
	var ctxb strings.Builder
	fmt.Fprintf(&ctxb, "Bible Question: %s\n\n", question)
	ctxb.WriteString("Relevant Bible Verses:\n")
	for _, v := range verses {
		fmt.Fprintf(&ctxb, "- %s: %q\n", v.Reference, v.Text)
	}
	if len(commentary) > 0 {
		ctxb.WriteString("\nRelevant Commentary:\n")
		for _, c := range commentary {
			fmt.Fprintf(&ctxb, "- %s...\n", truncate(c.Text, 200))
		}
	}

	return "You are a knowledgeable Bible study assistant. Answer the user's question based on the provided biblical context.\n\n" +
		ctxb.String() +
		"\nProvide a thoughtful, accurate answer that:\n" +
		"1. Directly addresses the question\n" +
		"2. References the relevant verses provided\n" +
		"3. Explains the biblical context and meaning\n" +
		"4. Is respectful of different interpretations\n" +
		"5. Is helpful for Bible study\n\n" +
		"Your response:"
}

// topicPrompt builds the topic summary prompt. Only the strongest sources
// feed the prompt: the first five verses and first three commentary
// excerpts.
func topicPrompt(topic string, verses []VerseHit, commentary []CommentaryHit) string {
	var ctxb strings.Builder
	fmt.Fprintf(&ctxb, "Biblical Topic: %s\n\n", topic)
	ctxb.WriteString("Related Verses:\n")
	for i, v := range verses {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&ctxb, "- %s: %q\n", v.Reference, v.Text)
	}
	if len(commentary) > 0 {
		ctxb.WriteString("\nCommentary Insights:\n")
		for i, c := range commentary {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&ctxb, "- %s...\n", truncate(c.Text, 150))
		}
	}

	return "You are a Bible study assistant. Provide a comprehensive summary of the biblical topic based on the provided verses and commentary.\n\n" +
		ctxb.String() +
		"\nCreate a summary that:\n" +
		"1. Explains what the Bible teaches about this topic\n" +
		"2. Highlights key themes and patterns\n" +
		"3. References specific verses when relevant\n" +
		"4. Is suitable for Bible study and reflection\n" +
		"5. Is encouraging and instructive\n\n" +
		"Your summary:"
}

// reflectionPrompt builds the short daily devotional prompt.
func reflectionPrompt(verse VerseHit, topic string) string {
	ctx := fmt.Sprintf("Daily verse: %s - %q\nTopic focus: %s\nContext: Daily devotional reflection\n",
		verse.Reference, verse.Text, topic)

	return "You are a devotional writer. Create a brief, encouraging reflection based on the daily Bible verse.\n\n" +
		ctx +
		"\nWrite a reflection that:\n" +
		"1. Explains the verse in practical terms\n" +
		"2. Offers encouragement and hope\n" +
		"3. Suggests how to apply it to daily life\n" +
		"4. Is warm and personal in tone\n" +
		"5. Is 2-3 sentences maximum\n\n" +
		"Your reflection:"
}
