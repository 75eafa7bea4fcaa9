package classify

import "strings"

// Label is one class of a taxonomy. Description is embedded once to build the
// label's centroid; Keywords drive the fallback scorer.
type Label struct {
	Name        string
	Description string
	Keywords    []string
}

// Taxonomy is an ordered label set. Order is significant: it breaks ties in
// both the centroid and the keyword categorizers.
type Taxonomy struct {
	Name    string
	Labels  []Label
	Default string
}

// Names returns label names in taxonomy order.
func (t Taxonomy) Names() []string {
	names := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		names[i] = l.Name
	}
	return names
}

// Contains reports whether label is one of the taxonomy's labels or its default.
func (t Taxonomy) Contains(label string) bool {
	if label == t.Default {
		return true
	}
	for _, l := range t.Labels {
		if l.Name == label {
			return true
		}
	}
	return false
}

// Coerce maps label onto the taxonomy. Case and surrounding space are
// forgiven; anything else unknown becomes the default.
func (t Taxonomy) Coerce(label string) string {
	label = strings.TrimSpace(label)
	if t.Contains(label) {
		return label
	}
	for _, l := range t.Labels {
		if strings.EqualFold(l.Name, label) {
			return l.Name
		}
	}
	return t.Default
}

// FineTaxonomy is the topical label set stored as an article's category.
func FineTaxonomy() Taxonomy {
	return Taxonomy{
		Name:    "category",
		Default: "Other",
		Labels: []Label{
			{"Politics", "Government, elections, political parties, lawmakers and public policy debates.",
				[]string{"election", "parliament", "senate", "congress", "minister", "president", "government", "policy", "vote", "campaign", "lawmaker", "political"}},
			{"Business", "Companies, markets, the economy, central banks, interest rates, earnings and corporate finance.",
				[]string{"fed", "federal reserve", "rates", "interest rate", "inflation", "central bank", "economy", "market", "stocks", "shares", "earnings", "revenue", "profit", "investor", "company", "bank", "gdp", "bond"}},
			{"Technology", "Software, hardware, consumer electronics, internet platforms and the technology industry.",
				[]string{"software", "hardware", "smartphone", "app", "tech", "cloud", "chip", "semiconductor", "startup", "internet", "platform", "gadget"}},
			{"Artificial Intelligence", "Artificial intelligence, machine learning, large language models and AI products.",
				[]string{"ai", "artificial intelligence", "machine learning", "llm", "large language model", "neural network", "chatbot", "generative"}},
			{"Cybersecurity", "Hacks, data breaches, ransomware, vulnerabilities and digital security.",
				[]string{"hack", "hacker", "breach", "ransomware", "malware", "vulnerability", "phishing", "cyberattack", "cybersecurity"}},
			{"Cryptocurrency", "Bitcoin, crypto assets, blockchain technology and digital currency exchanges.",
				[]string{"bitcoin", "crypto", "cryptocurrency", "blockchain", "ethereum", "token", "stablecoin", "defi"}},
			{"Science", "Scientific research, discoveries, space exploration and academic studies.",
				[]string{"research", "scientist", "study", "discovery", "nasa", "space", "physics", "biology", "experiment", "telescope"}},
			{"Health", "Medicine, disease, public health, hospitals, drugs and wellbeing.",
				[]string{"health", "hospital", "vaccine", "disease", "patient", "medicine", "drug", "virus", "doctor", "treatment", "clinical"}},
			{"Environment", "Climate change, pollution, conservation, wildlife and natural disasters.",
				[]string{"climate", "emissions", "pollution", "environment", "wildlife", "carbon", "flood", "wildfire", "drought", "biodiversity"}},
			{"Energy", "Oil, gas, electricity, renewable power and the energy sector.",
				[]string{"oil", "gas", "energy", "solar", "wind power", "renewable", "electricity", "nuclear", "opec", "pipeline"}},
			{"Sports", "Sports competitions, athletes, teams, matches and tournaments.",
				[]string{"match", "tournament", "championship", "league", "goal", "coach", "player", "olympic", "football", "tennis", "season"}},
			{"Entertainment", "Movies, music, television, celebrities and the arts.",
				[]string{"movie", "film", "music", "album", "celebrity", "tv", "series", "actor", "actress", "festival", "box office"}},
			{"World", "International affairs, diplomacy, conflicts and events between countries.",
				[]string{"war", "diplomat", "united nations", "treaty", "foreign", "sanctions", "border", "embassy", "refugee", "conflict"}},
			{"Crime", "Crime, police investigations, arrests and criminal trials.",
				[]string{"police", "arrest", "murder", "crime", "suspect", "robbery", "shooting", "investigation", "charged"}},
			{"Legal", "Courts, lawsuits, judges, rulings and legal disputes.",
				[]string{"court", "lawsuit", "judge", "ruling", "supreme court", "attorney", "litigation", "verdict", "settlement"}},
			{"Education", "Schools, universities, students, teachers and education policy.",
				[]string{"school", "university", "student", "teacher", "education", "campus", "tuition", "curriculum"}},
			{"Real Estate", "Housing markets, property prices, mortgages and construction.",
				[]string{"housing", "real estate", "property", "mortgage", "home prices", "rent", "construction", "landlord"}},
			{"Automotive", "Cars, electric vehicles, carmakers and transportation technology.",
				[]string{"car", "vehicle", "electric vehicle", "ev", "tesla", "automaker", "carmaker", "self-driving"}},
			{"Travel", "Tourism, airlines, airports, hotels and travel destinations.",
				[]string{"travel", "tourism", "airline", "airport", "flight", "hotel", "tourist", "vacation"}},
			{"Lifestyle", "Food, fashion, relationships, home life and personal wellbeing.",
				[]string{"fashion", "food", "recipe", "restaurant", "lifestyle", "wellness", "diet", "beauty"}},
		},
	}
}

// MainTaxonomy is the coarse regulatory, growth and risk oriented label set.
func MainTaxonomy() Taxonomy {
	return Taxonomy{
		Name:    "main_category",
		Default: "GENERAL",
		Labels: []Label{
			{"REGULATORY", "New regulations, regulators, rule changes, licensing and supervisory authority actions.",
				[]string{"regulation", "regulator", "regulatory", "rule", "license", "supervisory", "authority", "directive", "sec", "legislation"}},
			{"COMPLIANCE", "Compliance obligations, audits, reporting requirements, AML and KYC controls.",
				[]string{"compliance", "audit", "aml", "kyc", "reporting requirement", "anti-money laundering", "disclosure", "sanctions screening"}},
			{"LEGAL", "Lawsuits, court rulings, legal disputes, settlements and litigation.",
				[]string{"lawsuit", "court", "litigation", "settlement", "ruling", "judge", "sued", "legal"}},
			{"RISK", "Risk exposure, credit risk, market volatility, downgrades and warnings.",
				[]string{"risk", "volatility", "downgrade", "exposure", "default", "warning", "uncertainty", "stress test"}},
			{"FRAUD", "Fraud, scams, embezzlement, market manipulation and financial crime.",
				[]string{"fraud", "scam", "embezzlement", "ponzi", "manipulation", "money laundering", "bribery", "insider trading"}},
			{"CYBERSECURITY", "Cyber attacks, data breaches, ransomware and information security incidents.",
				[]string{"cyber", "breach", "ransomware", "hack", "malware", "phishing", "vulnerability", "data leak"}},
			{"MARKET_GROWTH", "Market expansion, rising demand, revenue growth and new customer segments.",
				[]string{"growth", "expansion", "demand", "market share", "record revenue", "surge", "boom", "new markets"}},
			{"INVESTMENT", "Funding rounds, venture capital, investments, IPOs and capital raising.",
				[]string{"investment", "funding", "venture capital", "ipo", "raised", "investor", "series a", "capital"}},
			{"MERGERS_ACQUISITIONS", "Mergers, acquisitions, takeovers, buyouts and corporate deals.",
				[]string{"merger", "acquisition", "acquire", "takeover", "buyout", "deal", "acquired"}},
			{"PRODUCT_LAUNCH", "New products, services, features and launches announced by companies.",
				[]string{"launch", "unveil", "new product", "release", "rollout", "introduces", "announced"}},
			{"PARTNERSHIP", "Partnerships, collaborations, alliances and joint ventures between organizations.",
				[]string{"partnership", "partner", "collaboration", "alliance", "joint venture", "teamed up"}},
			{"ECONOMIC", "Macroeconomic news: inflation, interest rates, central banks, GDP and employment.",
				[]string{"inflation", "interest rate", "rates", "central bank", "fed", "gdp", "unemployment", "economy", "recession"}},
			{"GENERAL", "General news that does not fit a specific business or regulatory theme.",
				nil},
		},
	}
}
