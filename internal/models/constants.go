package models

// metadata keys stored with every indexed chunk
const (
	MetaFileName   = "file_name"
	MetaFilePath   = "file_path"
	MetaPage       = "page"
	MetaPageNumber = "page_number"
	MetaChunkSize  = "chunk_size"
	MetaWordCount  = "word_count"
	MetaSource     = "source"
	MetaChunkID    = "chunk_id"
)

const UnknownSource = "Unknown"

// fixed answers
const (
	NoInformationAnswer   = "I don't know. I couldn't find relevant information in the provided documents."
	NoResultsAnswer       = "I don't know. I couldn't find any relevant information in the documents."
	LowRelevanceAnswer    = "I don't know. The available information doesn't seem directly relevant to your question."
	GenerationErrorAnswer = "I apologize, but I encountered an error while generating the answer."
	ProcessingErrorAnswer = "I apologize, but I encountered an error while processing your question."
	ExtractivePrefix      = "Based on the documents, here's what I found: "
)

const (
	ContextSeparator = "\n"
	Ellipsis         = "..."
)

var (
	AnswerPromptTemplate = `You are a helpful assistant that answers questions based only on the provided context.

Instructions:
- Answer the question using only information from the context provided
- If the context doesn't contain enough information to answer the question, say "I don't know"
- Keep your answer concise and under %d words
- Be accurate and don't make up information
- Include specific details when available

Context:
%s

Question: %s

Answer:`
)
