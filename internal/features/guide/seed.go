package guide

import "github.com/forgemcp/gateway/pkg/models"

// seedGuides loads on first startup only, when the guides table is empty.
var seedGuides = []models.GuideEntry{
	{
		ID:         "guide-memory-basics",
		Slug:       "memory-basics",
		Title:      "Saving and recalling memories",
		Category:   "memory",
		Difficulty: "beginner",
		Excerpt:    "Learn how to persist a fact and find it again later.",
		Tags:       []string{"memory", "recall", "basics"},
		Body: "Call memory_save with a key and a value to persist a fact.\n\n" +
			"Call memory_recall with a query to rank saved memories by relevance and retrieve the best matches.\n\n" +
			"Call memory_forget with an id to remove a memory you no longer need.",
	},
	{
		ID:         "guide-planning-trees",
		Slug:       "planning-trees",
		Title:      "Building a task tree",
		Category:   "planning",
		Difficulty: "beginner",
		Excerpt:    "Learn how to break work into a tree of tasks.",
		Tags:       []string{"planning", "tasks", "tree"},
		Body: "Call planning_create with content to add a root task.\n\n" +
			"Call planning_create again with parentId set to nest a task under an existing one.\n\n" +
			"Call planning_tree to render the current forest as an ASCII tree with a status summary.",
	},
	{
		ID:         "guide-tdd-cycle",
		Slug:       "tdd-cycle",
		Title:      "Running a red-green-refactor cycle",
		Category:   "tdd",
		Difficulty: "intermediate",
		Excerpt:    "Learn the tdd_* tools that record each phase of a test-driven cycle.",
		Tags:       []string{"tdd", "testing", "red", "green", "refactor"},
		Body: "Call tdd_red against a failing test to record the red phase.\n\n" +
			"Make the test pass, then call tdd_green to record the green phase.\n\n" +
			"Call tdd_refactor after cleaning up the implementation, then tdd_verify to confirm the suite still passes.",
	},
	{
		ID:         "guide-tool-selection",
		Slug:       "tool-selection",
		Title:      "How tools get ranked and surfaced",
		Category:   "tools",
		Difficulty: "intermediate",
		Excerpt:    "Understand the essential/relevant/on-demand layering behind list_tools.",
		Tags:       []string{"bm25", "ranking", "tools"},
		Body: "Pinned tools always appear in the essential layer, regardless of the query.\n\n" +
			"A non-empty query ranks the remaining catalog with BM25 and boosts frequently used tools.\n\n" +
			"Every registered tool stays callable even when it is not listed.",
	},
}
