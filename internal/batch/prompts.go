package batch

import (
	"fmt"
	"strings"

	"riviera/internal/llm"
)

// Generation model settings. The 16k output ceiling fits the largest
// collection payloads without running into stop_reason=max_tokens.
const (
	GenerationModel     = "claude-sonnet-4-20250514"
	GenerationMaxTokens = 16000
)

// webSearchTool is the provider-hosted search tool attached to every
// generation request so results reflect live data.
var webSearchTool = map[string]any{
	"type": "web_search_20250305",
	"name": "web_search",
}

// displayNames maps village slugs to the names used in prompts.
var displayNames = map[string]string{
	"riomaggiore": "Riomaggiore",
	"manarola":    "Manarola",
	"corniglia":   "Corniglia",
	"vernazza":    "Vernazza",
	"monterosso":  "Monterosso al Mare",
}

func villageDisplayName(village string) string {
	if name, ok := displayNames[village]; ok {
		return name
	}
	if village == "" {
		return village
	}
	return strings.ToUpper(village[:1]) + village[1:]
}

// collectionSubjects phrases what each collection asks the model to
// search for.
var collectionSubjects = map[string]string{
	CollectionRestaurants:    "best restaurants",
	CollectionAccommodations: "best places to stay (hotels, guesthouses, apartments)",
	CollectionPOIs:           "most notable points of interest, viewpoints, and landmarks",
	CollectionEvents:         "upcoming festivals, sagre, and cultural events",
	CollectionTransportation: "transportation options (trains, ferries, trails, parking)",
	CollectionWeather:        "seasonal weather patterns and best visiting conditions",
}

// collectionSkeletons sketch the required JSON shape per collection.
// The full field-by-field schema lives with the importer; the prompt
// only needs enough structure for the model to match it.
var collectionSkeletons = map[string]string{
	CollectionRestaurants: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>", "total_results": <n>, "sort_order": "descending by average_rating"},
  "restaurants": [{"rank": <int>, "name": "<string>", "slug": "<lowercase-hyphenated>", "location": {...}, "contact": {...}, "ratings": {"average_rating": <float>, ...}, "details": {"cuisine_type": [...], "price_range": {...}}, "opening_hours": {...}, "menu": {"signature_dishes": [...], "must_try": [...]}, "reviews": [...], "images": [...], "pros_cons": {...}, "tips": [...]}]
}`,
	CollectionAccommodations: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>", "total_results": <n>, "sort_order": "descending by average_rating"},
  "accommodations": [{"rank": <int>, "name": "<string>", "slug": "<lowercase-hyphenated>", "type": "<hotel|guesthouse|apartment|b&b>", "location": {...}, "contact": {...}, "ratings": {...}, "details": {"price_range": {...}, "amenities": [...], "room_types": [...]}, "reviews": [...], "images": [...], "pros_cons": {...}, "tips": [...]}]
}`,
	CollectionPOIs: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>", "total_results": <n>},
  "pois": [{"rank": <int>, "name": "<string>", "slug": "<lowercase-hyphenated>", "category": "<viewpoint|church|trail|beach|landmark>", "location": {...}, "description": "<string>", "visit_info": {"duration_minutes": <int>, "best_time": "<string>", "entry_fee_eur": <float or null>}, "images": [...], "tips": [...]}]
}`,
	CollectionEvents: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>", "total_results": <n>},
  "events": [{"name": "<string>", "slug": "<lowercase-hyphenated>", "category": "<festival|sagra|religious|music|market>", "dates": {"start": "<YYYY-MM-DD>", "end": "<YYYY-MM-DD or null>", "recurring": "<annual|one-off>"}, "location": {...}, "description": "<string>", "tips": [...]}]
}`,
	CollectionTransportation: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>"},
  "transportation": {"train": {...}, "ferry": {...}, "trails": [...], "parking": [...], "local_tips": [...]}
}`,
	CollectionWeather: `{
  "metadata": {"query_location": "<village>, Cinque Terre, Italy", "generated_at": "<ISO 8601>"},
  "weather": {"seasons": [{"name": "<string>", "months": [...], "avg_high_c": <float>, "avg_low_c": <float>, "rain_days": <int>, "sea_temp_c": <float>, "crowds": "<low|medium|high>", "notes": "<string>"}], "best_months": [...], "local_tips": [...]}
}`,
}

// BuildPrompt composes the generation prompt for one collection in one
// village.
func BuildPrompt(collectionType, village string, itemCount int) (string, error) {
	subject, ok := collectionSubjects[collectionType]
	if !ok {
		return "", fmt.Errorf("unknown collection type: %s", collectionType)
	}
	name := villageDisplayName(village)

	var b strings.Builder
	fmt.Fprintf(&b, "Search for the top %d %s in %s, Cinque Terre, Italy.\n", itemCount, subject, name)
	b.WriteString("Return results as a valid JSON object with this exact structure:\n\n")
	b.WriteString(strings.ReplaceAll(collectionSkeletons[collectionType], "<village>", name))
	b.WriteString("\n\nCRITICAL INSTRUCTIONS:\n")
	b.WriteString("1. Return ONLY valid JSON - no markdown, no code blocks, no explanatory text\n")
	b.WriteString("2. Use null for genuinely unavailable data, not empty strings\n")
	fmt.Fprintf(&b, "3. Only include results located IN %s itself\n", name)
	b.WriteString("4. All prices in EUR as numbers; times in 24-hour HH:MM format\n")
	b.WriteString("5. Find real image URLs from Google Maps, TripAdvisor photos, or official sites\n")
	return b.String(), nil
}

// BuildBatchRequests turns a (collection, villages) pair into one
// provider request per village with a deterministic custom id of the
// form "<collectionType>-<village>".
func BuildBatchRequests(collectionType string, villages []string, itemsPerVillage int) ([]llm.BatchRequest, error) {
	if !ValidCollection(collectionType) {
		return nil, fmt.Errorf("unknown collection type: %s", collectionType)
	}
	if len(villages) == 0 {
		return nil, fmt.Errorf("no villages to generate for")
	}
	requests := make([]llm.BatchRequest, 0, len(villages))
	for _, village := range villages {
		prompt, err := BuildPrompt(collectionType, village, itemsPerVillage)
		if err != nil {
			return nil, err
		}
		requests = append(requests, llm.BatchRequest{
			CustomID: fmt.Sprintf("%s-%s", collectionType, village),
			Params: llm.MessageRequest{
				Model:     GenerationModel,
				MaxTokens: GenerationMaxTokens,
				Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, prompt)},
				Tools:     []map[string]any{webSearchTool},
			},
		})
	}
	return requests, nil
}
